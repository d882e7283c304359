// Package enode is the peer book peripheral module: it identifies nodes by
// the keccak256 hash of their public key and records known (id, address)
// pairs for later dialing. It performs no discovery of its own — nodes are
// added from static configuration or from successful handshakes elsewhere in
// the module.
package enode

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/eth2030/netp2p/crypto"
)

// NodeID is a 32-byte unique identifier for a node: keccak256 of its
// 64-byte uncompressed secp256k1 public key (RLPx) or its raw identity key.
type NodeID [32]byte

// String returns the hex-encoded node ID.
func (id NodeID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether the ID is all zeros.
func (id NodeID) IsZero() bool { return id == NodeID{} }

// HexID converts a hex string to a NodeID, panicking if invalid.
func HexID(s string) NodeID {
	id, err := ParseID(s)
	if err != nil {
		panic("enode: invalid node ID: " + err.Error())
	}
	return id
}

// ParseID parses a hex-encoded node ID. The "0x" prefix is optional.
func ParseID(s string) (NodeID, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return NodeID{}, err
	}
	if len(b) != 32 {
		return NodeID{}, fmt.Errorf("enode: wrong ID length %d, want 32", len(b))
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}

// PubkeyToID derives a NodeID from a 64-byte uncompressed RLPx node key
// (uncompressed secp256k1 public key with the 0x04 prefix byte stripped).
func PubkeyToID(pubkey []byte) NodeID {
	var id NodeID
	copy(id[:], crypto.Keccak256(pubkey))
	return id
}

// Node is a known peer: its identity, network address, and optionally its
// raw public key (kept for re-verifying identity on connect).
type Node struct {
	ID     NodeID
	IP     net.IP
	TCP    uint16
	UDP    uint16
	Pubkey []byte
}

// NewNode creates a Node with the given ID and network endpoints.
func NewNode(id NodeID, ip net.IP, tcp, udp uint16) *Node {
	return &Node{ID: id, IP: ip, TCP: tcp, UDP: udp}
}

// String returns the enode:// URL representation:
// enode://<hex-id>@<ip>:<tcp-port>[?discport=<udp-port>].
func (n *Node) String() string {
	ip := "127.0.0.1"
	if n.IP != nil {
		ip = n.IP.String()
	}
	s := fmt.Sprintf("enode://%s@%s:%d", n.ID.String(), ip, n.TCP)
	if n.UDP != 0 && n.UDP != n.TCP {
		s += fmt.Sprintf("?discport=%d", n.UDP)
	}
	return s
}

// TCPAddr returns the TCP dial address of the node.
func (n *Node) TCPAddr() net.TCPAddr {
	return net.TCPAddr{IP: n.IP, Port: int(n.TCP)}
}

// ParseNode parses an enode:// URL into a Node.
func ParseNode(rawurl string) (*Node, error) {
	if !strings.HasPrefix(rawurl, "enode://") {
		return nil, errors.New("enode: missing enode:// prefix")
	}
	rest := rawurl[len("enode://"):]

	atIdx := strings.Index(rest, "@")
	if atIdx < 0 {
		return nil, errors.New("enode: missing @ separator")
	}
	hexID := rest[:atIdx]
	hostPort := rest[atIdx+1:]

	idBytes, err := hex.DecodeString(hexID)
	if err != nil {
		return nil, fmt.Errorf("enode: invalid hex node ID: %w", err)
	}

	hostPortPart, queryPart, _ := strings.Cut(hostPort, "?")
	host, portStr, err := net.SplitHostPort(hostPortPart)
	if err != nil {
		return nil, fmt.Errorf("enode: invalid host:port: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("enode: invalid IP address %q", host)
	}
	tcpPort, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("enode: invalid TCP port: %w", err)
	}
	udpPort := tcpPort

	if queryPart != "" {
		for _, param := range strings.Split(queryPart, "&") {
			k, v, ok := strings.Cut(param, "=")
			if ok && k == "discport" {
				dp, err := strconv.ParseUint(v, 10, 16)
				if err != nil {
					return nil, fmt.Errorf("enode: invalid discport: %w", err)
				}
				udpPort = dp
			}
		}
	}

	node := &Node{IP: ip, TCP: uint16(tcpPort), UDP: uint16(udpPort)}
	switch len(idBytes) {
	case 32:
		copy(node.ID[:], idBytes)
	case 64, 65:
		pub := idBytes
		if len(pub) == 65 {
			pub = pub[1:]
		}
		node.Pubkey = pub
		node.ID = PubkeyToID(pub)
	default:
		return nil, fmt.Errorf("enode: invalid node ID length %d", len(idBytes))
	}
	return node, nil
}

// Book is the peer book: a concurrency-safe record of known peers, indexed
// by NodeID. It is populated from static configuration and from peers
// encountered during RLPx handshakes; it runs no discovery protocol.
type Book struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
}

// NewBook returns an empty peer book.
func NewBook() *Book {
	return &Book{nodes: make(map[NodeID]*Node)}
}

// Add records n in the book, overwriting any existing entry with the same ID.
func (b *Book) Add(n *Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[n.ID] = n
}

// Remove deletes the entry for id, if present.
func (b *Book) Remove(id NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.nodes, id)
}

// Get returns the node recorded for id, or nil.
func (b *Book) Get(id NodeID) *Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodes[id]
}

// All returns a snapshot of every known node.
func (b *Book) All() []*Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, n)
	}
	return out
}

// Len reports the number of known nodes.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.nodes)
}

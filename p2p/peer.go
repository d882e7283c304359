package p2p

import (
	"errors"
	"sync"
)

var (
	// ErrPeerAlreadyRegistered is returned when attempting to register a peer
	// that already exists in the peer set.
	ErrPeerAlreadyRegistered = errors.New("p2p: peer already registered")

	// ErrPeerNotRegistered is returned when attempting to unregister a peer
	// that is not in the peer set.
	ErrPeerNotRegistered = errors.New("p2p: peer not registered")

	// ErrMaxPeers is returned when the peer set is full.
	ErrMaxPeers = errors.New("p2p: max peers reached")

	// ErrPeerSetClosed is returned when operating on a closed peer set.
	ErrPeerSetClosed = errors.New("p2p: peer set closed")
)

// Cap is a sub-protocol capability: a (name, version) pair a peer
// advertises in its Hello message.
type Cap struct {
	Name    string
	Version uint
}

// Peer represents one established RLPx connection, once past the
// Negotiated state. It holds the identifying/negotiated state named by the
// WireConnection record: node id, remote address, the capabilities the peer
// advertised in its Hello, and the capability range map installed at Hello
// time.
type Peer struct {
	id         string
	remoteAddr string
	caps       []Cap
	ranges     map[Cap]capRange

	mu sync.RWMutex
}

// NewPeer creates a Peer with the given identity, address, and advertised
// capabilities.
func NewPeer(id, remoteAddr string, caps []Cap, ranges map[Cap]capRange) *Peer {
	capsCopy := make([]Cap, len(caps))
	copy(capsCopy, caps)
	return &Peer{
		id:         id,
		remoteAddr: remoteAddr,
		caps:       capsCopy,
		ranges:     ranges,
	}
}

// ID returns the peer's unique identifier (hex-encoded node id).
func (p *Peer) ID() string { return p.id }

// RemoteAddr returns the peer's remote network address.
func (p *Peer) RemoteAddr() string { return p.remoteAddr }

// Caps returns the capabilities the peer advertised in its Hello.
func (p *Peer) Caps() []Cap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := make([]Cap, len(p.caps))
	copy(c, p.caps)
	return c
}

// PeerSet is a thread-safe, capacity-bounded collection of connected peers.
type PeerSet struct {
	mu       sync.RWMutex
	peers    map[string]*Peer
	maxPeers int
	closed   bool
}

// NewPeerSet creates a peer set. maxPeers <= 0 means unbounded.
func NewPeerSet(maxPeers int) *PeerSet {
	return &PeerSet{
		peers:    make(map[string]*Peer),
		maxPeers: maxPeers,
	}
}

// Register adds a peer to the set.
func (ps *PeerSet) Register(p *Peer) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return ErrPeerSetClosed
	}
	if _, exists := ps.peers[p.id]; exists {
		return ErrPeerAlreadyRegistered
	}
	if ps.maxPeers > 0 && len(ps.peers) >= ps.maxPeers {
		return ErrMaxPeers
	}
	ps.peers[p.id] = p
	return nil
}

// Unregister removes a peer from the set.
func (ps *PeerSet) Unregister(id string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, exists := ps.peers[id]; !exists {
		return ErrPeerNotRegistered
	}
	delete(ps.peers, id)
	return nil
}

// Peer returns the peer with the given ID, or nil if not found.
func (ps *PeerSet) Peer(id string) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.peers[id]
}

// Len returns the number of peers in the set.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

// Peers returns a snapshot of all peers in the set.
func (ps *PeerSet) Peers() []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	list := make([]*Peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		list = append(list, p)
	}
	return list
}

// Close marks the set as closed; further Register calls fail.
func (ps *PeerSet) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.closed = true
	for k := range ps.peers {
		delete(ps.peers, k)
	}
}

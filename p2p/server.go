package p2p

import (
	"crypto/ecdsa"
	"fmt"
	"net"
	"sync"

	"github.com/eth2030/netp2p/p2p/enode"
)

// Server runs the RLPx listener and outbound dialer, maintaining a bounded
// PeerSet and a Book of known nodes. It owns no sub-protocol logic itself;
// Config.Handlers are invoked per negotiated capability as peers connect.
type Server struct {
	cfg   *Config
	book  *enode.Book
	peers *PeerSet

	mu       sync.Mutex
	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a Server with the given configuration and peer book.
// If book is nil, a fresh empty Book is created.
func NewServer(cfg *Config, book *enode.Book) *Server {
	if book == nil {
		book = enode.NewBook()
	}
	return &Server{
		cfg:   cfg,
		book:  book,
		peers: NewPeerSet(cfg.MaxPeers),
		quit:  make(chan struct{}),
	}
}

// Book returns the server's peer book.
func (s *Server) Book() *enode.Book { return s.book }

// Peers returns the server's connected-peer set.
func (s *Server) Peers() *PeerSet { return s.peers }

// Listen starts accepting inbound connections on addr. It returns once the
// listener is bound; Accept loop runs in the background until Close.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("p2p: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleAccepted(nc)
		}()
	}
}

func (s *Server) handleAccepted(nc net.Conn) {
	peer, err := Accept(nc, s.cfg)
	if err != nil {
		nc.Close()
		return
	}
	s.registerOrDrop(peer)
}

// DialNode establishes an outbound connection to n and registers the
// resulting Peer. It records n in the peer book on success.
func (s *Server) DialNode(n *enode.Node, remotePub *ecdsa.PublicKey) (*Peer, error) {
	addr := n.TCPAddr()
	peer, err := Dial(addr.String(), remotePub, s.cfg)
	if err != nil {
		return nil, err
	}
	if err := s.registerOrDrop(peer); err != nil {
		return nil, err
	}
	s.book.Add(n)
	return peer, nil
}

func (s *Server) registerOrDrop(peer *Peer) error {
	if err := s.peers.Register(peer); err != nil {
		return err
	}
	return nil
}

// Close stops the listener and empties the peer set. It does not close the
// connections of peers that were registered.
func (s *Server) Close() error {
	close(s.quit)
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	s.peers.Close()
	s.wg.Wait()
	return nil
}

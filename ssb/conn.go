package ssb

import (
	"crypto/ed25519"
	"fmt"
	"net"
)

// ServiceConfig describes one SSB service endpoint: its long-term identity
// and the network identifier it will only ever speak the handshake with.
type ServiceConfig struct {
	BindAddress string
	Identity    ed25519.PublicKey
	PrivateKey  ed25519.PrivateKey
	NetworkID   [32]byte
}

func (cfg ServiceConfig) identity() Identity {
	return Identity{PublicKey: cfg.Identity, PrivateKey: cfg.PrivateKey, NetworkID: cfg.NetworkID}
}

// Peer is one established, authenticated SSB connection: the RPC multiplexer
// running over the session's boxstream, plus the remote party's verified
// long-term identity.
type Peer struct {
	RemotePublicKey ed25519.PublicKey
	RPC             *Conn
	nc              net.Conn
}

// Close sends a goodbye frame (best effort) and closes the underlying
// socket.
func (p *Peer) Close() error {
	_ = p.RPC.Goodbye()
	return p.nc.Close()
}

// Dial opens an outbound TCP connection, runs the client handshake against
// the expected remote public key, and returns an RPC peer. The
// caller must still call Peer.RPC.Run in a goroutine (or inline) to start
// dispatching frames, after installing an IncomingHandler if one is needed.
func Dial(addr string, remotePub ed25519.PublicKey, cfg ServiceConfig) (*Peer, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	session, err := ClientHandshake(nc, cfg.identity(), remotePub)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return newPeer(nc, session, true), nil
}

// Accept completes the responder side of the handshake on an already
// accepted net.Conn and returns an RPC peer; the caller starts
// Peer.RPC.Run.
func Accept(nc net.Conn, cfg ServiceConfig) (*Peer, error) {
	session, err := ServerHandshake(nc, cfg.identity())
	if err != nil {
		nc.Close()
		return nil, err
	}
	return newPeer(nc, session, false), nil
}

// newPeer wires the writer/reader to the correct half of the session: the
// client writes with the client-to-server key/nonce and reads with the
// server-to-client half; the server does the reverse.
func newPeer(nc net.Conn, session Session, isClient bool) *Peer {
	var bw *Writer
	var br *Reader
	if isClient {
		bw = NewWriter(nc, session.C2SKey, session.C2SNonce)
		br = NewReader(nc, session.S2CKey, session.S2CNonce)
	} else {
		bw = NewWriter(nc, session.S2CKey, session.S2CNonce)
		br = NewReader(nc, session.C2SKey, session.C2SNonce)
	}
	return &Peer{
		RemotePublicKey: session.RemotePublicKey,
		RPC:             NewConn(bw, br),
		nc:              nc,
	}
}

// Listener accepts inbound SSB connections, running the responder handshake
// on each before handing it to onPeer.
type Listener struct {
	cfg ServiceConfig
	ln  net.Listener
}

// Listen binds cfg.BindAddress and returns a Listener ready to Serve.
func Listen(cfg ServiceConfig) (*Listener, error) {
	ln, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return nil, fmt.Errorf("ssb: listen: %w", err)
	}
	return &Listener{cfg: cfg, ln: ln}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections in a loop, handing each successfully
// handshaken peer to onPeer in its own goroutine, until Close is called.
func (l *Listener) Serve(onPeer func(*Peer)) error {
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			return err
		}
		go func(nc net.Conn) {
			peer, err := Accept(nc, l.cfg)
			if err != nil {
				nc.Close()
				return
			}
			onPeer(peer)
		}(nc)
	}
}

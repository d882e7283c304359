// Package p2p implements the RLPx/devp2p secure session layer: a two-pass
// ECIES handshake, a MAC-chained encrypted frame codec, and a Hello-based
// sub-protocol capability negotiation and dispatcher.
package p2p

// MsgReadWriter combines message reading and writing for a single
// sub-protocol. Protocol handlers receive this interface to exchange
// messages with a peer; message codes are relative to the sub-protocol
// (local-type ids, with the negotiated range offset already removed/added).
type MsgReadWriter interface {
	ReadMsg() (Msg, error)
	WriteMsg(msg Msg) error
}

// PeerHandler is the callback interface for sub-protocol peer lifecycle
// events, installed on a connection once Negotiated. Returning an error from
// HandlePeer disconnects the peer.
type PeerHandler interface {
	HandlePeer(peer *Peer, rw MsgReadWriter) error
}

// PeerHandlerFunc adapts an ordinary function to PeerHandler.
type PeerHandlerFunc func(peer *Peer, rw MsgReadWriter) error

// HandlePeer calls f(peer, rw).
func (f PeerHandlerFunc) HandlePeer(peer *Peer, rw MsgReadWriter) error {
	return f(peer, rw)
}

// PeerInfo provides read-only information about a connected peer.
type PeerInfo interface {
	ID() string
	RemoteAddr() string
	Caps() []Cap
}

// PeerSetReader provides read-only access to the set of connected peers.
type PeerSetReader interface {
	Peer(id string) *Peer
	Len() int
	Peers() []*Peer
}

var _ PeerHandler = PeerHandlerFunc(nil)
var _ PeerInfo = (*Peer)(nil)
var _ PeerSetReader = (*PeerSet)(nil)

package p2p

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/eth2030/netp2p/crypto"
	"github.com/eth2030/netp2p/rlp"
)

// Base wire protocol message ids (pre-offset); ids >= baseProtocolLength are
// routed through the negotiated capability range map.
const (
	helloMsg      = 0
	disconnectMsg = 1
	pingMsg       = 2
	pongMsg       = 3
)

// helloProtocolVersion is the devp2p protocol version advertised in Hello,
// distinct from the handshakeVersion field in the ECIES auth messages.
// Version 5 signals snappy-compressed frame bodies.
const helloProtocolVersion = 5

// Disconnect reason codes, per the base wire protocol.
const (
	DiscRequested uint8 = iota
	DiscTCPError
	DiscProtocolBreach
	DiscUselessPeer
	DiscTooManyPeers
	DiscAlreadyConnected
	DiscIncompatibleVersion
	DiscNullNodeID
	DiscQuitting
	DiscUnexpectedIdentity
	DiscSelf
	DiscPingTimeout
)

// connState is the WireConnection lifecycle: Init -> HandshakeInProgress ->
// Authenticated -> Closed. Frames are only accepted while Authenticated.
type connState int

const (
	stateInit connState = iota
	stateHandshakeInProgress
	stateAuthenticated
	stateClosed
)

var (
	ErrNotAuthenticated  = errors.New("p2p: connection not authenticated")
	ErrAlreadyNegotiated = errors.New("p2p: duplicate hello")
	ErrConnClosed        = errors.New("p2p: connection closed")
	ErrNoRoute           = errors.New("p2p: no capability range for message id")
)

// Hello is the unprompted message both ends send once the frame codec is up.
type Hello struct {
	Version    uint64
	ClientID   string
	Caps       []Cap
	ListenPort uint64
	NodeID     []byte
}

func encodeHello(h Hello) []byte {
	capsWriter := rlp.NewWriter()
	for _, c := range h.Caps {
		inner := rlp.NewWriter()
		inner.WriteBytes([]byte(c.Name))
		inner.WriteUint(uint64(c.Version))
		capsWriter.WriteList(inner.Bytes())
	}
	w := rlp.NewWriter()
	w.WriteUint(h.Version)
	w.WriteBytes([]byte(h.ClientID))
	w.WriteList(capsWriter.Bytes())
	w.WriteUint(h.ListenPort)
	w.WriteBytes(h.NodeID)
	out := rlp.NewWriter()
	out.WriteList(w.Bytes())
	return out.Bytes()
}

func decodeHello(data []byte) (Hello, error) {
	var h Hello
	r := rlp.NewReader(data)
	err := r.ReadList(func(inner *rlp.Reader) error {
		v, err := inner.ReadUint()
		if err != nil {
			return err
		}
		h.Version = v
		clientID, err := inner.ReadBytes()
		if err != nil {
			return err
		}
		h.ClientID = string(clientID)
		err = inner.ReadList(func(capsReader *rlp.Reader) error {
			for !capsReader.AtEnd() {
				var c Cap
				err := capsReader.ReadList(func(capReader *rlp.Reader) error {
					name, err := capReader.ReadBytes()
					if err != nil {
						return err
					}
					c.Name = string(name)
					ver, err := capReader.ReadUint()
					if err != nil {
						return err
					}
					c.Version = uint(ver)
					return nil
				})
				if err != nil {
					return err
				}
				h.Caps = append(h.Caps, c)
			}
			return nil
		})
		if err != nil {
			return err
		}
		lp, err := inner.ReadUint()
		if err != nil {
			return err
		}
		h.ListenPort = lp
		nodeID, err := inner.ReadBytes()
		if err != nil {
			return err
		}
		h.NodeID = nodeID
		return nil
	})
	if err != nil {
		return Hello{}, fmt.Errorf("%w: %v", ErrHandshakeFormat, err)
	}
	return h, nil
}

// Config describes the local node identity and capability set used for
// every dialed or accepted connection.
type Config struct {
	PrivateKey *ecdsa.PrivateKey
	ClientID   string
	ListenPort uint64
	SubProtos  []SubProtocol
	Handlers   map[string]PeerHandler
	MaxPeers   int
}

// Conn is one established RLPx wire connection: the frame codec plus the
// Hello/Disconnect/Ping/Pong state machine and sub-protocol dispatch table.
type Conn struct {
	nc         net.Conn
	fc         *frameCodec
	cfg        *Config
	remotePub  *ecdsa.PublicKey
	remoteAddr string

	mu         sync.Mutex
	state      connState
	localCaps  []Cap
	remoteCaps []Cap
	ranges     map[Cap]capRange
	inboxes    map[Cap]chan Msg

	pendingPing chan struct{}
}

// Dial opens an outbound TCP connection, runs the RLPx handshake, exchanges
// Hello, and starts the sub-protocol dispatch loop. It blocks until
// negotiation completes or fails.
func Dial(addr string, remotePub *ecdsa.PublicKey, cfg *Config) (*Peer, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Conn{nc: nc, cfg: cfg, remotePub: remotePub, remoteAddr: nc.RemoteAddr().String(), state: stateHandshakeInProgress}
	secrets, err := initiatorHandshake(nc, cfg.PrivateKey, remotePub)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c.finishSetup(secrets)
}

// Accept completes the responder side of the RLPx handshake on an already
// accepted net.Conn, exchanges Hello, and starts the dispatch loop.
func Accept(nc net.Conn, cfg *Config) (*Peer, error) {
	c := &Conn{nc: nc, cfg: cfg, remoteAddr: nc.RemoteAddr().String(), state: stateHandshakeInProgress}
	secrets, err := responderHandshake(nc, cfg.PrivateKey)
	if err != nil {
		nc.Close()
		return nil, err
	}
	c.remotePub = secrets.RemotePub
	return c.finishSetup(secrets)
}

func (c *Conn) finishSetup(secrets sessionSecrets) (*Peer, error) {
	fc, err := newFrameCodec(c.nc, secrets)
	if err != nil {
		c.nc.Close()
		return nil, err
	}
	c.fc = fc

	localID := crypto.PubkeyToNodeID(&c.cfg.PrivateKey.PublicKey)
	hello := Hello{
		Version:    helloProtocolVersion,
		ClientID:   c.cfg.ClientID,
		Caps:       localCapsOf(c.cfg.SubProtos),
		ListenPort: c.cfg.ListenPort,
		NodeID:     localID[:],
	}
	if err := c.fc.WriteFrame(helloMsg, encodeHello(hello)); err != nil {
		c.nc.Close()
		return nil, err
	}
	code, payload, err := c.fc.ReadFrame()
	if err != nil {
		c.nc.Close()
		return nil, err
	}
	if code != helloMsg {
		c.nc.Close()
		return nil, ErrHandshakeFormat
	}
	remoteHello, err := decodeHello(payload)
	if err != nil {
		c.nc.Close()
		return nil, err
	}

	c.fc.SetSnappy(hello.Version >= 5 && remoteHello.Version >= 5)

	c.mu.Lock()
	c.remoteCaps = remoteHello.Caps
	c.ranges = NegotiateCaps(c.cfg.SubProtos, remoteHello.Caps)
	c.state = stateAuthenticated
	c.mu.Unlock()

	remoteIDStr := remoteHello.NodeID
	peer := NewPeer(fmt.Sprintf("%x", remoteIDStr), c.remoteAddr, remoteHello.Caps, c.ranges)

	// Inboxes are created before the read loop starts so no inbound message
	// can race ahead of a handler's first ReadMsg call.
	c.mu.Lock()
	c.inboxes = make(map[Cap]chan Msg, len(c.ranges))
	for capability := range c.ranges {
		if _, ok := c.cfg.Handlers[capability.Name]; ok {
			c.inboxes[capability] = make(chan Msg, 64)
		}
	}
	c.mu.Unlock()

	go c.readLoop(peer)
	for capability := range c.ranges {
		if h, ok := c.cfg.Handlers[capability.Name]; ok {
			rw := &subProtoRW{conn: c, cap: capability, inbox: c.inboxes[capability]}
			go func(h PeerHandler, rw *subProtoRW) {
				if err := h.HandlePeer(peer, rw); err != nil {
					c.sendDisconnect(DiscRequested)
					c.close()
				}
			}(h, rw)
		}
	}
	return peer, nil
}

func localCapsOf(subs []SubProtocol) []Cap {
	caps := make([]Cap, 0, len(subs))
	for _, s := range subs {
		caps = append(caps, Cap{Name: s.Name, Version: s.Version})
	}
	return caps
}

// readLoop dispatches frames to the base protocol or to sub-protocol
// handlers until a fatal error or Disconnect is observed.
func (c *Conn) readLoop(peer *Peer) {
	defer c.close()
	for {
		code, payload, err := c.fc.ReadFrame()
		if err != nil {
			return
		}
		switch {
		case code == helloMsg:
			c.sendDisconnect(DiscProtocolBreach)
			return
		case code == disconnectMsg:
			return
		case code == pingMsg:
			_ = c.fc.WriteFrame(pongMsg, nil)
		case code == pongMsg:
			c.mu.Lock()
			if c.pendingPing != nil {
				close(c.pendingPing)
				c.pendingPing = nil
			}
			c.mu.Unlock()
		case code >= baseProtocolLength:
			c.mu.Lock()
			capability, r, ok := rangeFor(c.ranges, code)
			c.mu.Unlock()
			if !ok {
				c.sendDisconnect(DiscProtocolBreach)
				return
			}
			localCode := code - r.Lo
			c.dispatch(capability, localCode, payload)
		default:
			c.sendDisconnect(DiscProtocolBreach)
			return
		}
	}
}

// dispatch delivers an inbound sub-protocol message to the registered
// subProtoRW inbox for capability, if any handler has claimed it yet.
func (c *Conn) dispatch(capability Cap, localCode uint64, payload []byte) {
	c.mu.Lock()
	inbox := c.inboxes[capability]
	c.mu.Unlock()
	if inbox != nil {
		select {
		case inbox <- Msg{Code: localCode, Size: uint32(len(payload)), Payload: payload}:
		default:
		}
	}
}

// Ping sends a Ping and returns a channel closed when the matching Pong
// arrives. Only one outstanding ping is tracked at a time, per spec.
func (c *Conn) Ping() (<-chan struct{}, error) {
	c.mu.Lock()
	done := make(chan struct{})
	c.pendingPing = done
	c.mu.Unlock()
	if err := c.fc.WriteFrame(pingMsg, nil); err != nil {
		return nil, err
	}
	return done, nil
}

func (c *Conn) sendDisconnect(reason uint8) {
	w := rlp.NewWriter()
	w.WriteUint(uint64(reason))
	_ = c.fc.WriteFrame(disconnectMsg, w.Bytes())
}

func (c *Conn) close() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	c.mu.Unlock()
	c.nc.Close()
}

// subProtoRW implements MsgReadWriter for one negotiated sub-protocol,
// translating protocol-local message codes to/from the connection's global
// (offset) codes.
type subProtoRW struct {
	conn  *Conn
	cap   Cap
	inbox chan Msg
}

func (rw *subProtoRW) ReadMsg() (Msg, error) {
	msg, ok := <-rw.inbox
	if !ok {
		return Msg{}, ErrConnClosed
	}
	return msg, nil
}

func (rw *subProtoRW) WriteMsg(msg Msg) error {
	rw.conn.mu.Lock()
	_, r, ok := rangeForCap(rw.conn.ranges, rw.cap)
	rw.conn.mu.Unlock()
	if !ok {
		return ErrNoRoute
	}
	if msg.Code+r.Lo > r.Hi {
		return fmt.Errorf("p2p: message code %d out of range for %s", msg.Code, rw.cap.Name)
	}
	return rw.conn.fc.WriteFrame(r.Lo+msg.Code, msg.Payload)
}

func rangeForCap(ranges map[Cap]capRange, cap Cap) (Cap, capRange, bool) {
	r, ok := ranges[cap]
	return cap, r, ok
}

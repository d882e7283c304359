package ssb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// BodyType is the low two bits of an RPC frame's flags byte.
type BodyType byte

const (
	BodyBinary BodyType = 0
	BodyUTF8   BodyType = 1
	BodyJSON   BodyType = 2
)

const (
	flagStream = 0x08
	flagEndErr = 0x04
	flagType   = 0x03

	rpcHeaderSize = 9
)

// ErrRPCClosed is returned from every further Call or Send once the
// connection's boxstream ends (a goodbye sent or received, or a read
// error). Live calls are finished at that point, so their Recv reports
// ok=false.
var ErrRPCClosed = errors.New("ssb: rpc connection closed")

// Frame is one decoded RPC frame.
type Frame struct {
	Stream   bool
	EndErr   bool
	BodyType BodyType
	Body     []byte
}

func encodeFrame(reqNum int32, f Frame) []byte {
	out := make([]byte, rpcHeaderSize+len(f.Body))
	var flags byte
	if f.Stream {
		flags |= flagStream
	}
	if f.EndErr {
		flags |= flagEndErr
	}
	flags |= byte(f.BodyType) & flagType
	out[0] = flags
	binary.BigEndian.PutUint32(out[1:5], uint32(len(f.Body)))
	binary.BigEndian.PutUint32(out[5:9], uint32(reqNum))
	copy(out[9:], f.Body)
	return out
}

func decodeFrameHeader(hdr []byte) (flags byte, bodyLen uint32, reqNum int32) {
	flags = hdr[0]
	bodyLen = binary.BigEndian.Uint32(hdr[1:5])
	reqNum = int32(binary.BigEndian.Uint32(hdr[5:9]))
	return
}

// Call represents one live RPC exchange, either opened locally (outbound) or
// dispatched to an IncomingHandler (inbound). Exactly one side writes
// positive request numbers and the other writes negated ones for the life
// of the call.
type Call struct {
	conn      *Conn
	reqNum    int32 // magnitude; always positive
	writeSign int32 // +1 if our outbound frames use +reqNum, -1 if negated

	in     chan Frame
	closed chan struct{}
	once   sync.Once
}

// Recv blocks for the next inbound frame belonging to this call. ok is
// false once the call has ended (end/err frame delivered, or the
// connection closed).
func (c *Call) Recv() (Frame, bool) {
	select {
	case f, ok := <-c.in:
		return f, ok
	case <-c.closed:
		// A final frame may have been delivered just before the call ended.
		select {
		case f := <-c.in:
			return f, true
		default:
			return Frame{}, false
		}
	}
}

// Send writes one frame as our side of the call. stream must be true for
// every frame of a source/sink/duplex call; end marks the final frame.
func (c *Call) Send(body []byte, bodyType BodyType, stream, end bool) error {
	wire := encodeFrame(c.writeSign*c.reqNum, Frame{Stream: stream, EndErr: end, BodyType: bodyType, Body: body})
	return c.conn.writeRaw(wire)
}

func (c *Call) deliver(f Frame) {
	select {
	case c.in <- f:
	case <-c.closed:
	}
}

func (c *Call) finish() {
	c.once.Do(func() { close(c.closed) })
}

// IncomingHandler is invoked once per inbound call the peer initiates, with
// the call's first frame already delivered through Recv.
type IncomingHandler func(call *Call)

// Conn is one SSB RPC multiplexer instance running over a boxstream.
type Conn struct {
	bw *Writer
	br *Reader

	writeMu sync.Mutex

	mu      sync.Mutex
	nextReq int32
	calls   map[int32]*Call
	onCall  IncomingHandler
	closed  chan struct{}
	closeOnce sync.Once
}

// NewConn constructs an RPC multiplexer over an already-established
// boxstream reader/writer pair.
func NewConn(bw *Writer, br *Reader) *Conn {
	return &Conn{
		bw:     bw,
		br:     br,
		calls:  make(map[int32]*Call),
		closed: make(chan struct{}),
	}
}

// SetIncomingHandler installs the callback invoked for each call the remote
// peer initiates. Must be called before Run.
func (c *Conn) SetIncomingHandler(h IncomingHandler) {
	c.onCall = h
}

// Run reads frames from the boxstream until a goodbye frame, a decrypt
// error, or the underlying connection closes. It dispatches frames to
// outstanding calls and to the IncomingHandler for new inbound calls, and
// must run in its own goroutine for the life of the connection.
func (c *Conn) Run() error {
	defer c.shutdown()
	for {
		chunk, err := c.br.ReadChunk()
		if err != nil {
			if ErrGoodbye(err) {
				return nil
			}
			return err
		}
		if len(chunk) < rpcHeaderSize {
			return fmt.Errorf("ssb: rpc frame shorter than header (%d bytes)", len(chunk))
		}
		flags, bodyLen, reqNum := decodeFrameHeader(chunk[:rpcHeaderSize])
		body := chunk[rpcHeaderSize:]
		if uint32(len(body)) != bodyLen {
			return fmt.Errorf("ssb: rpc frame body length mismatch: header says %d, got %d", bodyLen, len(body))
		}
		frame := Frame{
			Stream:   flags&flagStream != 0,
			EndErr:   flags&flagEndErr != 0,
			BodyType: BodyType(flags & flagType),
			Body:     body,
		}
		c.route(reqNum, frame)
	}
}

func (c *Conn) route(reqNum int32, frame Frame) {
	magnitude := reqNum
	var sign int32 = 1
	if magnitude < 0 {
		magnitude = -magnitude
		sign = -1
	}

	c.mu.Lock()
	call, ok := c.calls[magnitude]
	if !ok {
		if sign < 0 {
			// Stray response to a request we never made (or already
			// completed); nothing to route it to.
			c.mu.Unlock()
			return
		}
		// New inbound call: the peer writes +reqNum, so we respond with -reqNum.
		call = &Call{conn: c, reqNum: magnitude, writeSign: -1, in: make(chan Frame, 16), closed: make(chan struct{})}
		c.calls[magnitude] = call
		handler := c.onCall
		c.mu.Unlock()
		if handler != nil {
			go handler(call)
		}
	} else {
		c.mu.Unlock()
	}

	call.deliver(frame)
	if !frame.Stream || frame.EndErr {
		c.mu.Lock()
		delete(c.calls, magnitude)
		c.mu.Unlock()
		call.finish()
	}
}

// Call opens a new outbound request, allocating the next request number.
// For a plain async call pass stream=false; for source/sink/duplex pass
// stream=true on every frame including this first one.
func (c *Conn) Call(body []byte, bodyType BodyType, stream bool) (*Call, error) {
	c.mu.Lock()
	c.nextReq++
	reqNum := c.nextReq
	call := &Call{conn: c, reqNum: reqNum, writeSign: 1, in: make(chan Frame, 16), closed: make(chan struct{})}
	c.calls[reqNum] = call
	c.mu.Unlock()

	wire := encodeFrame(reqNum, Frame{Stream: stream, BodyType: bodyType, Body: body})
	if err := c.writeRaw(wire); err != nil {
		c.mu.Lock()
		delete(c.calls, reqNum)
		c.mu.Unlock()
		return nil, err
	}
	return call, nil
}

func (c *Conn) writeRaw(wire []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrRPCClosed
	default:
	}
	return c.bw.WriteChunk(wire)
}

// Goodbye sends the boxstream goodbye frame and stops accepting new writes.
func (c *Conn) Goodbye() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := c.bw.WriteGoodbye()
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return err
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.mu.Lock()
	calls := make([]*Call, 0, len(c.calls))
	for _, call := range c.calls {
		calls = append(calls, call)
	}
	c.calls = make(map[int32]*Call)
	c.mu.Unlock()
	for _, call := range calls {
		call.finish()
	}
}

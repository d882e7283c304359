package p2p

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	"github.com/eth2030/netp2p/crypto"
	"github.com/eth2030/netp2p/rlp"
	"github.com/golang/snappy"
)

const (
	frameHeaderSize     = 16
	frameHeaderFullSize = frameHeaderSize + 16 // header + header-MAC
)

// frameCodec implements the MAC-chained, AES-CTR-encrypted RLPx frame wire
// format over a connection, using the egress/ingress Keccak-256 sponges and
// AES/MAC secrets derived by the handshake.
type frameCodec struct {
	conn io.ReadWriter

	macCipher cipher.Block
	enc       cipher.Stream
	dec       cipher.Stream

	egressMAC  crypto.KeccakState
	ingressMAC crypto.KeccakState

	// snappy indicates both peers advertised protocol version >= 5 in their
	// Hello and every frame body is snappy-compressed before framing.
	snappy bool
}

// SetSnappy enables or disables snappy compression of frame bodies. Callers
// set this once, after Hello negotiation determines the mutual protocol
// version, and before any sub-protocol frame is written or read.
func (fc *frameCodec) SetSnappy(on bool) { fc.snappy = on }

// newFrameCodec builds a frame codec from completed handshake secrets. Both
// directions share one AES-CTR keystream (derived from aesSecret) with a
// zero IV, since the key is never reused across sessions.
func newFrameCodec(conn io.ReadWriter, s sessionSecrets) (*frameCodec, error) {
	macCipher, err := aes.NewCipher(s.MACSecret)
	if err != nil {
		return nil, fmt.Errorf("p2p: invalid mac secret: %w", err)
	}
	encCipher, err := aes.NewCipher(s.AESSecret)
	if err != nil {
		return nil, fmt.Errorf("p2p: invalid aes secret: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	return &frameCodec{
		conn:       conn,
		macCipher:  macCipher,
		enc:        cipher.NewCTR(encCipher, iv),
		dec:        cipher.NewCTR(encCipher, iv),
		egressMAC:  s.EgressMAC,
		ingressMAC: s.IngressMAC,
	}, nil
}

// WriteFrame encodes and sends one devp2p message as a frame. The frame
// body is the RLP list [message_id, message_payload], snappy-compressed
// when both peers negotiated protocol version >= 5.
func (fc *frameCodec) WriteFrame(code uint64, payload []byte) error {
	inner := rlp.NewWriter()
	inner.WriteUint(code)
	inner.WriteBytes(payload)
	bw := rlp.NewWriter()
	bw.WriteList(inner.Bytes())
	body := bw.Bytes()
	if fc.snappy {
		body = snappy.Encode(nil, body)
	}

	if len(body) > 1<<24 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	hdr := rlp.NewWriter()
	hdr.WriteUint(0) // protocol_id
	hdr.WriteUint(0) // context_id
	hw := rlp.NewWriter()
	hw.WriteList(hdr.Bytes())
	headerRLP := hw.Bytes()

	header := make([]byte, frameHeaderSize)
	putUint24(header, uint32(len(body)))
	copy(header[3:], headerRLP)

	fc.enc.XORKeyStream(header, header)
	headerMAC := updateMAC(fc.egressMAC, fc.macCipher, header)

	paddedBody := padTo16(body)
	fc.enc.XORKeyStream(paddedBody, paddedBody)

	fc.egressMAC.Write(paddedBody)
	frameMACSeed := fc.egressMAC.Sum(nil)
	frameMAC := updateMAC(fc.egressMAC, fc.macCipher, frameMACSeed)

	out := make([]byte, 0, frameHeaderFullSize+len(paddedBody)+16)
	out = append(out, header...)
	out = append(out, headerMAC...)
	out = append(out, paddedBody...)
	out = append(out, frameMAC...)
	_, err := fc.conn.Write(out)
	return err
}

// ReadFrame reads and decodes one frame, returning the message code and
// payload. Reassembly handles a short first read of the header by retrying
// io.ReadFull, matching the spec's 32-byte-minimum buffering requirement.
func (fc *frameCodec) ReadFrame() (uint64, []byte, error) {
	header := make([]byte, frameHeaderFullSize)
	if _, err := io.ReadFull(fc.conn, header); err != nil {
		return 0, nil, err
	}
	headerCipher := header[:frameHeaderSize]
	headerMAC := header[frameHeaderSize:]

	expectedMAC := updateMAC(fc.ingressMAC, fc.macCipher, headerCipher)
	if !bytesEqual(expectedMAC, headerMAC) {
		return 0, nil, ErrInvalidMAC
	}

	headerPlain := make([]byte, frameHeaderSize)
	copy(headerPlain, headerCipher)
	fc.dec.XORKeyStream(headerPlain, headerPlain)

	bodySize := readUint24(headerPlain)
	paddedSize := bodySize
	if rem := paddedSize % 16; rem != 0 {
		paddedSize += 16 - rem
	}

	bodyAndMAC := make([]byte, paddedSize+16)
	if _, err := io.ReadFull(fc.conn, bodyAndMAC); err != nil {
		return 0, nil, err
	}
	paddedBody := bodyAndMAC[:paddedSize]
	frameMAC := bodyAndMAC[paddedSize:]

	fc.ingressMAC.Write(paddedBody)
	frameMACSeed := fc.ingressMAC.Sum(nil)
	expectedFrameMAC := updateMAC(fc.ingressMAC, fc.macCipher, frameMACSeed)
	if !bytesEqual(expectedFrameMAC, frameMAC) {
		return 0, nil, ErrInvalidMAC
	}

	fc.dec.XORKeyStream(paddedBody, paddedBody)
	body := paddedBody[:bodySize]
	if fc.snappy {
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: snappy: %v", ErrHandshakeFormat, err)
		}
		body = decoded
	}

	var code uint64
	var payload []byte
	listErr := rlp.NewReader(body).ReadList(func(inner *rlp.Reader) error {
		c, err := inner.ReadUint()
		if err != nil {
			return err
		}
		code = c
		p, err := inner.ReadBytes()
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if listErr != nil {
		return 0, nil, fmt.Errorf("%w: bad frame body: %v", ErrHandshakeFormat, listErr)
	}
	return code, payload, nil
}

// updateMAC reseeds mac with AES(macSecret, mac.Sum()) XOR seed, writes the
// result back into the sponge, and returns the low 16 bytes of the updated
// digest — the MAC-chaining step shared by header and body MACs.
func updateMAC(mac crypto.KeccakState, block cipher.Block, seed []byte) []byte {
	aesBuf := make([]byte, aes.BlockSize)
	block.Encrypt(aesBuf, mac.Sum(nil)[:aes.BlockSize])
	for i := range aesBuf {
		aesBuf[i] ^= seed[i]
	}
	mac.Write(aesBuf)
	return mac.Sum(nil)[:16]
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func readUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func padTo16(b []byte) []byte {
	if rem := len(b) % 16; rem != 0 {
		out := make([]byte, len(b)+16-rem)
		copy(out, b)
		return out
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

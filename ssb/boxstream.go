package ssb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/eth2030/netp2p/crypto"
)

const (
	maxChunkSize  = 4096
	sealedHeader  = 34
	headerTagSize = 16
)

// ErrStream covers a boxstream decrypt failure. Always fatal; the
// connection must close.
var ErrStream = errors.New("ssb: boxstream decrypt failed")

// errGoodbye is returned by Reader.ReadChunk when a goodbye frame (18
// zero-byte decrypted header) was observed; it is not itself fatal.
var errGoodbye = errors.New("ssb: goodbye frame")

// ErrGoodbye reports whether err is the sentinel returned by Reader.ReadChunk
// on observing a clean end-of-stream goodbye frame.
func ErrGoodbye(err error) bool {
	return errors.Is(err, errGoodbye)
}

// Writer encrypts outbound plaintext chunks into the boxstream wire format
// and serializes writes to the underlying connection.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	key   [32]byte
	nonce [24]byte
}

// NewWriter constructs a boxstream Writer using key and the initial nonce.
// The nonce is owned exclusively by the Writer from this point on.
func NewWriter(w io.Writer, key [32]byte, nonce [24]byte) *Writer {
	return &Writer{w: w, key: key, nonce: nonce}
}

// WriteChunk encrypts and sends one plaintext chunk, splitting it into
// multiple wire frames if it exceeds 4096 bytes. Order is preserved and each
// frame advances the nonce by two.
func (bw *Writer) WriteChunk(plaintext []byte) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	for len(plaintext) > 0 {
		n := len(plaintext)
		if n > maxChunkSize {
			n = maxChunkSize
		}
		if err := bw.writeFrame(plaintext[:n]); err != nil {
			return err
		}
		plaintext = plaintext[n:]
	}
	return nil
}

// WriteGoodbye sends the special all-zero-decrypted-header frame that
// signals a clean close.
func (bw *Writer) WriteGoodbye() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	headerNonce := bw.nonce
	bw.nonce = advanceNonce(advanceNonce(bw.nonce))

	zeroHeader := make([]byte, 18)
	sealedHdr := crypto.SecretBoxSeal(zeroHeader, &headerNonce, &bw.key)
	_, err := bw.w.Write(sealedHdr)
	return err
}

func (bw *Writer) writeFrame(plaintext []byte) error {
	headerNonce := bw.nonce
	bodyNonce := advanceNonce(bw.nonce)
	bw.nonce = advanceNonce(bodyNonce)

	sealedBody := crypto.SecretBoxSeal(plaintext, &bodyNonce, &bw.key)
	bodyTag := sealedBody[:headerTagSize]
	bodyCipher := sealedBody[headerTagSize:]

	headerPlain := make([]byte, 2+headerTagSize)
	binary.BigEndian.PutUint16(headerPlain[:2], uint16(len(plaintext)))
	copy(headerPlain[2:], bodyTag)

	sealedHdr := crypto.SecretBoxSeal(headerPlain, &headerNonce, &bw.key)
	if len(sealedHdr) != sealedHeader {
		return fmt.Errorf("ssb: unexpected sealed header length %d", len(sealedHdr))
	}

	if _, err := bw.w.Write(sealedHdr); err != nil {
		return err
	}
	_, err := bw.w.Write(bodyCipher)
	return err
}

// Reader decrypts inbound boxstream frames.
type Reader struct {
	r     io.Reader
	key   [32]byte
	nonce [24]byte
}

// NewReader constructs a boxstream Reader using key and the initial nonce.
func NewReader(r io.Reader, key [32]byte, nonce [24]byte) *Reader {
	return &Reader{r: r, key: key, nonce: nonce}
}

// ReadChunk reads and decrypts one wire frame, returning its plaintext. It
// returns an error satisfying ErrGoodbye(err) on a clean goodbye frame, and
// ErrStream on any decrypt failure.
func (br *Reader) ReadChunk() ([]byte, error) {
	headerNonce := br.nonce
	bodyNonce := advanceNonce(br.nonce)
	br.nonce = advanceNonce(bodyNonce)

	sealedHdr := make([]byte, sealedHeader)
	if _, err := io.ReadFull(br.r, sealedHdr); err != nil {
		return nil, err
	}
	headerPlain, ok := crypto.SecretBoxOpen(sealedHdr, &headerNonce, &br.key)
	if !ok {
		return nil, fmt.Errorf("%w: header", ErrStream)
	}
	if len(headerPlain) != 2+headerTagSize {
		return nil, fmt.Errorf("%w: malformed header length %d", ErrStream, len(headerPlain))
	}
	if allZero(headerPlain) {
		return nil, errGoodbye
	}

	bodyLen := int(binary.BigEndian.Uint16(headerPlain[:2]))
	if bodyLen > maxChunkSize {
		return nil, fmt.Errorf("%w: chunk length %d exceeds maximum", ErrStream, bodyLen)
	}
	bodyTag := headerPlain[2:]

	bodyCipher := make([]byte, bodyLen)
	if _, err := io.ReadFull(br.r, bodyCipher); err != nil {
		return nil, err
	}
	sealedBody := append(append([]byte{}, bodyTag...), bodyCipher...)
	plaintext, ok := crypto.SecretBoxOpen(sealedBody, &bodyNonce, &br.key)
	if !ok {
		return nil, fmt.Errorf("%w: body", ErrStream)
	}
	return plaintext, nil
}

func advanceNonce(n [24]byte) [24]byte {
	var out [24]byte
	copy(out[:], n[:])
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

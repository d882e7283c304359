// encode.go implements the RLP (recursive-length-prefix) byte-string and
// list encoding rules used by the RLPx and devp2p wire formats.
package rlp

// Writer accumulates RLP-encoded output. Small appends are coalesced into
// the trailing buffer to bound allocator pressure: this does not change the
// emitted bytes, only how they are batched internally.
type Writer struct {
	bufs [][]byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// coalesceLimit is the maximum combined length at which an append is folded
// into the trailing buffer instead of starting a new one.
const coalesceLimit = 32

// append adds b to the writer, coalescing into the trailing buffer when both
// b and the trailing buffer are small enough that the combination stays
// within coalesceLimit.
func (w *Writer) append(b []byte) {
	if len(w.bufs) > 0 && len(b) < coalesceLimit {
		last := w.bufs[len(w.bufs)-1]
		if len(last)+len(b) <= coalesceLimit {
			w.bufs[len(w.bufs)-1] = append(last, b...)
			return
		}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	w.bufs = append(w.bufs, cp)
}

// Bytes returns the concatenated output.
func (w *Writer) Bytes() []byte {
	n := 0
	for _, b := range w.bufs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range w.bufs {
		out = append(out, b...)
	}
	return out
}

// WriteBytes writes the RLP string encoding of v into the writer.
func (w *Writer) WriteBytes(v []byte) {
	w.append(EncodeBytes(v))
}

// WriteList writes the RLP list encoding of the already-encoded items in
// body (body must be the concatenation of each item's own RLP encoding).
func (w *Writer) WriteList(body []byte) {
	w.append(ListPrefix(len(body)))
	w.append(body)
}

// WriteUint writes v as a minimally-encoded big-endian RLP string (0 encodes
// to the empty string, per RLP convention).
func (w *Writer) WriteUint(v uint64) {
	w.WriteBytes(encodeUint(v))
}

// EncodeBytes returns the RLP string encoding of v: a bare byte if v is a
// single byte < 0x80, otherwise a length prefix followed by v.
func EncodeBytes(v []byte) []byte {
	if len(v) == 1 && v[0] < 0x80 {
		return []byte{v[0]}
	}
	prefix := stringPrefix(len(v))
	out := make([]byte, 0, len(prefix)+len(v))
	out = append(out, prefix...)
	out = append(out, v...)
	return out
}

// EncodeList returns the RLP list encoding wrapping body, where body is the
// concatenation of the RLP encodings of the list's items.
func EncodeList(body []byte) []byte {
	prefix := ListPrefix(len(body))
	out := make([]byte, 0, len(prefix)+len(body))
	out = append(out, prefix...)
	out = append(out, body...)
	return out
}

// stringPrefix returns the RLP length prefix for a byte string of the given
// length: 0x80+len for len<=55, else 0xb7+len(len-bytes) followed by the
// minimally-encoded big-endian length.
func stringPrefix(n int) []byte {
	return lengthPrefix(n, 0x80, 0xb7)
}

// ListPrefix returns the RLP length prefix for a list whose encoded items
// occupy n bytes: 0xc0+n for n<=55, else 0xf7+len(len-bytes) followed by the
// minimally-encoded big-endian length.
func ListPrefix(n int) []byte {
	return lengthPrefix(n, 0xc0, 0xf7)
}

func lengthPrefix(n int, shortBase, longBase byte) []byte {
	if n <= 55 {
		return []byte{shortBase + byte(n)}
	}
	lenBytes := minimalBigEndian(uint64(n))
	out := make([]byte, 1+len(lenBytes))
	out[0] = longBase + byte(len(lenBytes))
	copy(out[1:], lenBytes)
	return out
}

// minimalBigEndian encodes v as the shortest possible big-endian byte
// sequence (no leading zero bytes; zero itself encodes to the empty slice).
func minimalBigEndian(v uint64) []byte {
	if v == 0 {
		return nil
	}
	var buf [8]byte
	n := 8
	for v > 0 {
		n--
		buf[n] = byte(v)
		v >>= 8
	}
	return buf[n:]
}

// encodeUint returns the minimal big-endian encoding of v, with no leading
// zero bytes (the RLP integer encoding rule).
func encodeUint(v uint64) []byte {
	return minimalBigEndian(v)
}

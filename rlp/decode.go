// decode.go implements a lazy, streaming RLP reader over a byte slice, with
// nested ReadList scoping a child reader to a list's bounds.
package rlp

import "math/big"

// Reader is a lazy cursor over RLP-encoded bytes. Reading past the end
// returns ErrEndOfInput; malformed prefixes return ErrInvalidEncoding.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// AtEnd reports whether the reader has consumed all of its bounded input.
func (r *Reader) AtEnd() bool {
	return r.pos >= len(r.data)
}

// Pos returns the number of bytes consumed so far, and Remaining returns
// whatever bytes follow the cursor without consuming them. Together these
// let a caller split a byte stream into "one RLP item" and "everything
// after it", e.g. a frame body's message code followed by raw payload
// bytes that are not themselves a single RLP item.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the unread tail of the reader's bounded input.
func (r *Reader) Remaining() []byte {
	return r.data[r.pos:]
}

// peekHeader reports the RLP item kind at the current position without
// consuming it: the prefix byte, whether it denotes a list, the content
// length, and where the content starts.
func (r *Reader) peekHeader() (isList bool, contentStart, contentLen int, err error) {
	if r.pos >= len(r.data) {
		return false, 0, 0, ErrEndOfInput
	}
	b := r.data[r.pos]
	switch {
	case b < 0x80:
		return false, r.pos, 1, nil
	case b < 0xb8:
		n := int(b - 0x80)
		start := r.pos + 1
		if start+n > len(r.data) {
			return false, 0, 0, ErrInputTooShort
		}
		return false, start, n, nil
	case b < 0xc0:
		lenOfLen := int(b - 0xb7)
		start := r.pos + 1
		if start+lenOfLen > len(r.data) {
			return false, 0, 0, ErrInputTooShort
		}
		lenBytes := r.data[start : start+lenOfLen]
		if len(lenBytes) > 0 && lenBytes[0] == 0 {
			return false, 0, 0, ErrInvalidEncoding
		}
		n := int(bytesToUint(lenBytes))
		contentStart := start + lenOfLen
		if contentStart+n > len(r.data) {
			return false, 0, 0, ErrInputTooShort
		}
		return false, contentStart, n, nil
	case b < 0xf8:
		n := int(b - 0xc0)
		start := r.pos + 1
		if start+n > len(r.data) {
			return true, 0, 0, ErrInputTooShort
		}
		return true, start, n, nil
	default:
		lenOfLen := int(b - 0xf7)
		start := r.pos + 1
		if start+lenOfLen > len(r.data) {
			return true, 0, 0, ErrInputTooShort
		}
		lenBytes := r.data[start : start+lenOfLen]
		if len(lenBytes) > 0 && lenBytes[0] == 0 {
			return true, 0, 0, ErrInvalidEncoding
		}
		n := int(bytesToUint(lenBytes))
		contentStart := start + lenOfLen
		if contentStart+n > len(r.data) {
			return true, 0, 0, ErrInputTooShort
		}
		return true, contentStart, n, nil
	}
}

// IsList reports whether the next item is a list, without consuming input.
func (r *Reader) IsList() (bool, error) {
	isList, _, _, err := r.peekHeader()
	return isList, err
}

// ReadBytes reads and returns the next item as a byte string. It returns
// ErrTypeMismatch if the next item is a list.
func (r *Reader) ReadBytes() ([]byte, error) {
	isList, start, n, err := r.peekHeader()
	if err != nil {
		return nil, err
	}
	if isList {
		return nil, ErrTypeMismatch
	}
	out := make([]byte, n)
	copy(out, r.data[start:start+n])
	r.pos = start + n
	return out, nil
}

// ReadUint reads the next item as a byte string and interprets it as a
// big-endian unsigned integer. A non-minimal encoding (one with a leading
// zero byte) is rejected.
func (r *Reader) ReadUint() (uint64, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return 0, err
	}
	if len(b) > 0 && b[0] == 0 {
		return 0, ErrInvalidEncoding
	}
	if len(b) > 8 {
		return 0, ErrInvalidEncoding
	}
	return bytesToUint(b), nil
}

// ReadBigInt reads the next item as a byte string and interprets it as a
// big-endian unsigned big.Int, rejecting non-minimal encodings.
func (r *Reader) ReadBigInt() (*big.Int, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	if len(b) > 0 && b[0] == 0 {
		return nil, ErrInvalidEncoding
	}
	return new(big.Int).SetBytes(b), nil
}

// ReadList reads the next item as a list, invokes fn with a child Reader
// scoped to exactly that list's content bytes, and advances past the whole
// list regardless of how much of it fn consumed. It returns ErrTypeMismatch
// if the next item is a string.
func (r *Reader) ReadList(fn func(*Reader) error) error {
	isList, start, n, err := r.peekHeader()
	if err != nil {
		return err
	}
	if !isList {
		return ErrTypeMismatch
	}
	child := &Reader{data: r.data[start : start+n]}
	r.pos = start + n
	return fn(child)
}

// bytesToUint decodes a big-endian byte slice (at most 8 bytes) as a uint64.
func bytesToUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

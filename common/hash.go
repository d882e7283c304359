// Package common holds the small value types shared across the devp2p and
// Secure Scuttlebutt session layers: fixed-size hashes and addresses, and
// the hex/byte conversion helpers built on top of them.
package common

import (
	"encoding/hex"
	"strings"
)

// HashLength is the number of bytes in a Hash (Keccak-256 digest size).
const HashLength = 32

// AddressLength is the number of bytes in an Address (lower 20 bytes of a
// Keccak-256 public-key hash).
const AddressLength = 20

// Hash is a fixed-size 32-byte value, typically a Keccak-256 digest.
type Hash [HashLength]byte

// BytesToHash sets h to the value of b, right-aligning if b is shorter than
// HashLength and truncating the most significant bytes if it is longer.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HexToHash converts a hex string (with or without 0x prefix) to a Hash.
func HexToHash(s string) Hash {
	return BytesToHash(FromHex(s))
}

// Bytes returns the raw bytes of h.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// String returns the 0x-prefixed hex encoding of h.
func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// Address is a 20-byte identifier.
type Address [AddressLength]byte

// BytesToAddress sets a to the value of b, right-aligning as in BytesToHash.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// String returns the 0x-prefixed hex encoding of a.
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Address{} }

// FromHex decodes a hex string, tolerating an optional 0x/0X prefix and an
// odd number of digits (as produced by some peer implementations).
func FromHex(s string) []byte {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// Hex encodes b as a 0x-prefixed hex string.
func Hex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// EmptyRootHash is the Keccak-256 hash of the RLP encoding of an empty
// byte string (0x80), i.e. the canonical hash of an empty trie.
var EmptyRootHash = HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

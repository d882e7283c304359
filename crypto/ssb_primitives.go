// ssb_primitives.go exposes the "given" primitives the Secure Scuttlebutt
// handshake and boxstream build on: Ed25519 identity keys, Curve25519
// scalar multiplication, XSalsa20-Poly1305 SecretBox, and HMAC-SHA-512-256.
package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"math/big"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"
)

// Ed25519PrivateKeyToX25519 derives the Curve25519 (Montgomery) scalar
// corresponding to an Ed25519 long-term private key, needed because SSB's
// handshake mixes long-term identities into ephemeral ECDH computations from
// both directions.
func Ed25519PrivateKeyToX25519(priv ed25519.PrivateKey) ([32]byte, error) {
	var out [32]byte
	if len(priv) != ed25519.PrivateKeySize {
		return out, errors.New("crypto: invalid ed25519 private key length")
	}
	seed := priv.Seed()
	h := sha512.Sum512(seed)
	copy(out[:], h[:32])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out, nil
}

// curve25519Prime is 2^255 - 19, the field modulus shared by Curve25519 and
// the birationally-equivalent twisted Edwards curve Ed25519 is defined over.
var curve25519Prime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}()

// GenerateEd25519Key generates a fresh Ed25519 identity keypair.
func GenerateEd25519Key() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Ed25519Sign produces a detached Ed25519 signature over msg.
func Ed25519Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Ed25519Verify reports whether sig is a valid detached signature over msg
// under pub.
func Ed25519Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}

// GenerateX25519Key generates a fresh Curve25519 ephemeral keypair suitable
// for ECDH.
func GenerateX25519Key() (pub, priv [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return pub, priv, err
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return pub, priv, nil
}

// X25519 performs scalar multiplication of priv against the point pub,
// returning the shared secret.
func X25519(priv, pub [32]byte) ([]byte, error) {
	shared, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return nil, err
	}
	return shared, nil
}

// Ed25519PublicKeyToX25519 converts an Ed25519 public key to its Curve25519
// (Montgomery form) equivalent, needed because SSB mixes long-term Ed25519
// identities into ephemeral Curve25519 ECDH computations.
func Ed25519PublicKeyToX25519(pub ed25519.PublicKey) ([32]byte, error) {
	var out [32]byte
	if len(pub) != ed25519.PublicKeySize {
		return out, errors.New("crypto: invalid ed25519 public key length")
	}

	// The Ed25519 encoding is the little-endian y-coordinate with the sign
	// of x folded into the top bit; clear it to recover y.
	yBytes := make([]byte, 32)
	copy(yBytes, pub)
	yBytes[31] &= 0x7f
	y := new(big.Int).SetBytes(reverse(yBytes))

	// Birational map from twisted Edwards to Montgomery form:
	// u = (1+y) / (1-y) mod p.
	one := big.NewInt(1)
	num := new(big.Int).Add(one, y)
	den := new(big.Int).Sub(one, y)
	den.Mod(den, curve25519Prime)
	denInv := new(big.Int).ModInverse(den, curve25519Prime)
	if denInv == nil {
		return out, errors.New("crypto: ed25519 public key has no x25519 equivalent")
	}
	u := num.Mul(num, denInv)
	u.Mod(u, curve25519Prime)

	uBytes := u.Bytes()
	le := reverse(padLeft(uBytes, 32))
	copy(out[:], le)
	return out, nil
}

// reverse returns a reversed copy of b (big-endian <-> little-endian).
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// padLeft left-pads b with zero bytes to length n.
func padLeft(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// SecretBoxSeal encrypts and authenticates msg under key and a 24-byte
// nonce, appending a 16-byte Poly1305 tag.
func SecretBoxSeal(msg []byte, nonce *[24]byte, key *[32]byte) []byte {
	return secretbox.Seal(nil, msg, nonce, key)
}

// SecretBoxOpen verifies and decrypts box, which must have been produced by
// SecretBoxSeal with the same key/nonce.
func SecretBoxOpen(box []byte, nonce *[24]byte, key *[32]byte) ([]byte, bool) {
	return secretbox.Open(nil, box, nonce, key)
}

// HMACSHA512256 computes HMAC-SHA-512 truncated to its first 32 bytes
// (the "SHA-512-256" construction SSB uses for its network-identifier
// MACs), matching the reference Scuttlebutt handshake protocol.
func HMACSHA512256(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)[:32]
}

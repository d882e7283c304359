// ecies.go wraps go-ethereum's ECIES implementation (secp256k1 ECDH + a
// SHA-256 KDF + AES-CTR + HMAC-SHA-256) for encrypting the two RLPx
// handshake messages against a peer's long-term public key.
package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"

	gethecies "github.com/ethereum/go-ethereum/crypto/ecies"
)

// ErrInvalidPublicKey is returned when a public key is not a valid point on
// the secp256k1 curve.
var ErrInvalidPublicKey = errors.New("ecies: invalid public key")

// ECIESEncrypt encrypts plaintext for the given recipient public key. s1/s2
// are optional shared info parameters mixed into the KDF and MAC
// respectively (RLPx passes nil for both). The output is
// [ephemeral_pubkey(65) || iv(16) || ciphertext || mac(32)].
func ECIESEncrypt(pub *ecdsa.PublicKey, plaintext, s1, s2 []byte) ([]byte, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, ErrInvalidPublicKey
	}
	eciesPub := gethecies.ImportECDSAPublic(pub)
	return gethecies.Encrypt(rand.Reader, eciesPub, plaintext, s1, s2)
}

// ECIESDecrypt decrypts an ECIES-encrypted message using the recipient's
// private key. s1/s2 must match the values passed to ECIESEncrypt.
func ECIESDecrypt(prv *ecdsa.PrivateKey, data, s1, s2 []byte) ([]byte, error) {
	if prv == nil {
		return nil, errors.New("ecies: nil private key")
	}
	eciesPrv := gethecies.ImportECDSA(prv)
	return eciesPrv.Decrypt(data, s1, s2)
}

// GenerateSharedSecret performs raw ECDH on secp256k1 and returns the
// x-coordinate of the shared point as a 32-byte big-endian value.
func GenerateSharedSecret(prv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	if prv == nil {
		return nil, errors.New("ecies: nil private key")
	}
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, ErrInvalidPublicKey
	}
	eciesPrv := gethecies.ImportECDSA(prv)
	eciesPub := gethecies.ImportECDSAPublic(pub)
	return eciesPrv.GenerateShared(eciesPub, 16, 16)
}

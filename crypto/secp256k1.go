package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"

	"github.com/eth2030/netp2p/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// S256 returns the secp256k1 curve used for all RLPx node identities and
// ephemeral handshake keys.
func S256() elliptic.Curve { return gethcrypto.S256() }

// GenerateKey generates a new secp256k1 private key using the system CSPRNG.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return gethcrypto.GenerateKey()
}

// HexToECDSA parses a hex-encoded secp256k1 private key, as found in
// configuration files for a node's long-term identity.
func HexToECDSA(hexkey string) (*ecdsa.PrivateKey, error) {
	return gethcrypto.HexToECDSA(hexkey)
}

// Sign produces a 65-byte recoverable ECDSA signature ([R || S || V]) over a
// 32-byte hash. Used by the RLPx auth message to sign, with the ephemeral
// key, the XOR of the static ECDH secret (local and remote identity keys)
// and the local nonce.
func Sign(hash []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if len(hash) != 32 {
		return nil, errors.New("crypto: hash must be 32 bytes")
	}
	return gethcrypto.Sign(hash, prv)
}

// Ecrecover recovers the 65-byte uncompressed public key that produced sig
// over hash.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	return gethcrypto.Ecrecover(hash, sig)
}

// SigToPub recovers the public key that produced sig over hash.
func SigToPub(hash, sig []byte) (*ecdsa.PublicKey, error) {
	return gethcrypto.SigToPub(hash, sig)
}

// VerifySignature checks a 64-byte [R || S] signature against an uncompressed
// or compressed public key, without recovery.
func VerifySignature(pubkey, hash, signature []byte) bool {
	return gethcrypto.VerifySignature(pubkey, hash, signature)
}

// FromECDSAPub marshals a public key to 65-byte uncompressed form
// (0x04 || X || Y).
func FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	return gethcrypto.FromECDSAPub(pub)
}

// UnmarshalPubkey parses a 65-byte uncompressed public key.
func UnmarshalPubkey(pub []byte) (*ecdsa.PublicKey, error) {
	return gethcrypto.UnmarshalPubkey(pub)
}

// CompressPubkey compresses a public key to 33 bytes.
func CompressPubkey(pubkey *ecdsa.PublicKey) []byte {
	return gethcrypto.CompressPubkey(pubkey)
}

// DecompressPubkey decompresses a 33-byte compressed public key.
func DecompressPubkey(pubkey []byte) (*ecdsa.PublicKey, error) {
	return gethcrypto.DecompressPubkey(pubkey)
}

// PubkeyToNodeID derives the 64-byte RLPx node identifier (the uncompressed
// public key with the leading format byte stripped) from an ECDSA key.
func PubkeyToNodeID(pub *ecdsa.PublicKey) [64]byte {
	var id [64]byte
	copy(id[:], FromECDSAPub(pub)[1:])
	return id
}

// PubkeyToAddress derives a 20-byte identifier from the Keccak-256 hash of
// the uncompressed public key, following the same convention Ethereum uses
// for account addresses.
func PubkeyToAddress(pub ecdsa.PublicKey) common.Address {
	pubBytes := FromECDSAPub(&pub)
	return common.BytesToAddress(Keccak256(pubBytes[1:])[12:])
}

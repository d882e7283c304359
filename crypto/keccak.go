package crypto

import (
	"github.com/eth2030/netp2p/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a common.Hash.
func Keccak256Hash(data ...[]byte) common.Hash {
	return common.BytesToHash(Keccak256(data...))
}

// NewKeccakState returns a live Keccak-256 sponge. Unlike Keccak256, the
// returned state can be fed incrementally (Write) and its running digest
// read at any point (Sum) without resetting — this is what the RLPx
// frame codec uses to chain the egress/ingress MAC across frames.
func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256().(KeccakState)
}

// KeccakState is the hash.Hash method set of golang.org/x/crypto/sha3's
// legacy Keccak-256 sponge. Sum appends the current digest without
// resetting the state, so callers can keep writing to it afterwards.
type KeccakState interface {
	Write(p []byte) (n int, err error)
	Sum(b []byte) []byte
	Reset()
	Size() int
	BlockSize() int
}

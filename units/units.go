// Package units converts between the wei/gwei/ether denominations used in
// Ethereum-family value objects, backed by uint256 arithmetic so a node never
// has to round-trip through *big.Int on hot paths like balance accounting.
package units

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Denomination sizes, in wei.
const (
	Wei   = 1
	GWei  = 1_000_000_000
	Ether = 1_000_000_000_000_000_000
)

var (
	gweiFactor  = uint256.NewInt(GWei)
	etherFactor = uint256.MustFromDecimal("1000000000000000000")
)

// ErrOverflow is returned when a conversion would not fit in a uint256.
var ErrOverflow = errors.New("units: value overflows uint256")

// ToUint256 converts a *big.Int to *uint256.Int, as go-ethereum's own
// balance-handling code does at the boundary between big.Int-based APIs and
// uint256-based ones.
func ToUint256(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return new(uint256.Int), nil
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	return u, nil
}

// FromUint256 converts a *uint256.Int back to *big.Int.
func FromUint256(u *uint256.Int) *big.Int {
	if u == nil {
		return new(big.Int)
	}
	return u.ToBig()
}

// GWeiToWei scales a gwei amount up to wei.
func GWeiToWei(gwei *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(gwei, gweiFactor)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// WeiToGWei scales a wei amount down to gwei, truncating any remainder
// smaller than one gwei.
func WeiToGWei(wei *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(wei, gweiFactor)
}

// EtherToWei scales an ether amount up to wei.
func EtherToWei(ether *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(ether, etherFactor)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// WeiToEther scales a wei amount down to ether, truncating any remainder
// smaller than one ether.
func WeiToEther(wei *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(wei, etherFactor)
}

// FormatWei renders a wei amount as a decimal ether string with up to 18
// fractional digits, trimming trailing zeros, the same presentation geth's
// own CLI tooling uses for account balances.
func FormatWei(wei *uint256.Int) string {
	if wei == nil {
		wei = new(uint256.Int)
	}
	whole := new(uint256.Int).Div(wei, etherFactor)
	frac := new(uint256.Int).Mod(wei, etherFactor)
	if frac.IsZero() {
		return whole.Dec()
	}
	fracStr := frac.Dec()
	for len(fracStr) < 18 {
		fracStr = "0" + fracStr
	}
	end := len(fracStr)
	for end > 0 && fracStr[end-1] == '0' {
		end--
	}
	return fmt.Sprintf("%s.%s", whole.Dec(), fracStr[:end])
}

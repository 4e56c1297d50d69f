package domain

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// BasisPointsDenominator is the fixed denominator for fee rates.
const BasisPointsDenominator = 10_000

// Amount is an unsigned 256-bit quantity of base units. The zero value is 0.
// Amounts are values: arithmetic returns new Amounts and never mutates the
// receiver.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 unsigned integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return Amount{v: *v}, nil
}

// MustAmount is ParseAmount for constants and tests. It panics on bad input.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromBig converts a non-negative big.Int that fits in 256 bits.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil || b.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative or nil", ErrInvalidAmount)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, ErrAmountOverflow
	}
	return Amount{v: *v}, nil
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.v.Eq(&b.v)
}

// Add returns a+b, failing on 256-bit overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

// Sub returns a-b, failing when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrAmountUnderflow
	}
	return out, nil
}

// MulDiv returns floor(a*mul/div) using a 512-bit intermediate product so
// the multiplication never truncates before the division.
func (a Amount) MulDiv(mul, div Amount) (Amount, error) {
	if div.IsZero() {
		return Amount{}, fmt.Errorf("%w: division by zero", ErrInconsistentState)
	}
	var out Amount
	if _, overflow := out.v.MulDivOverflow(&a.v, &mul.v, &div.v); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

// FeeAt returns floor(a*bps/10000).
func (a Amount) FeeAt(bps uint32) (Amount, error) {
	return a.MulDiv(NewAmount(uint64(bps)), NewAmount(BasisPointsDenominator))
}

// Big returns a as a new big.Int.
func (a Amount) Big() *big.Int {
	return a.v.ToBig()
}

// Uint64 returns the low 64 bits and whether the value fit.
func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

func (a Amount) String() string {
	return a.v.Dec()
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a decimal string so values above 2^53
// survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	return a.UnmarshalText(data)
}

// SumAmounts adds every amount in xs.
func SumAmounts(xs ...Amount) (Amount, error) {
	var total Amount
	for _, x := range xs {
		var err error
		if total, err = total.Add(x); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}

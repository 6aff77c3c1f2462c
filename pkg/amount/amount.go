// Package amount provides the arbitrary-precision smallest-unit integer used
// for every balance, liability and transfer value in the custody engine.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrTooManyDecimals = errors.New("amount has more decimals than the chain supports")
)

// Amount is an immutable integer quantity in a chain's smallest unit
// (wei, satoshi, lamport, drop). The zero value is 0.
type Amount struct {
	v *big.Int
}

// Zero returns a zero amount.
func Zero() Amount { return Amount{} }

// FromUint64 wraps n.
func FromUint64(n uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(n)}
}

// FromInt64 wraps n.
func FromInt64(n int64) Amount {
	return Amount{v: big.NewInt(n)}
}

// FromBig copies b. A nil b yields zero.
func FromBig(b *big.Int) Amount {
	if b == nil {
		return Amount{}
	}
	return Amount{v: new(big.Int).Set(b)}
}

// Parse reads a base-10 integer string. The empty string parses as zero.
func Parse(s string) (Amount, error) {
	if s == "" {
		return Amount{}, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{v: v}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int { return new(big.Int).Set(a.big()) }

// String returns the base-10 representation.
func (a Amount) String() string { return a.big().String() }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b, which may be negative.
func (a Amount) Sub(b Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.big(), b.big())}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{v: new(big.Int).Neg(a.big())}
}

// Cmp compares a and b.
func (a Amount) Cmp(b Amount) int { return a.big().Cmp(b.big()) }

// Sign returns -1, 0 or 1.
func (a Amount) Sign() int { return a.big().Sign() }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.Sign() == 0 }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

// Float64 is a lossy conversion for metrics only.
func (a Amount) Float64() float64 {
	f, _ := new(big.Float).SetInt(a.big()).Float64()
	return f
}

// Min returns the smaller of the given amounts.
func Min(first Amount, rest ...Amount) Amount {
	m := first
	for _, r := range rest {
		if r.Cmp(m) < 0 {
			m = r
		}
	}
	return m
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// ClampZero returns max(0, a).
func (a Amount) ClampZero() Amount {
	if a.Sign() < 0 {
		return Zero()
	}
	return a
}

// MarshalText implements encoding.TextMarshaler so amounts travel as strings in JSON.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = p
	return nil
}

// Units converts between human decimal notation and the smallest unit for a
// chain with the given number of decimals.
type Units struct {
	Symbol   string
	Decimals int32
}

// ToSmallest converts a human decimal string ("0.02") into smallest units.
func (u Units) ToSmallest(human string) (Amount, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, human)
	}
	if d.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}
	scaled := d.Shift(u.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %s allows %d", ErrTooManyDecimals, u.Symbol, u.Decimals)
	}
	return FromBig(scaled.BigInt()), nil
}

// ToHuman renders a in human units without losing precision.
func (u Units) ToHuman(a Amount) string {
	return decimal.NewFromBigInt(a.big(), -u.Decimals).String()
}

// Format renders a as "<human> <symbol>" for log and error messages.
func (u Units) Format(a Amount) string {
	return u.ToHuman(a) + " " + u.Symbol
}

package fp

import (
	"fmt"
	"math/big"
	"sync"
)

// Decimals is the implied fractional precision of a D18 price.
const Decimals = 18

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil) // 10^18

// D18 is a fixed-point ratio with 18 implied fractional decimal digits
// (pool-currency per unit). All conversions truncate toward zero; the
// truncation direction determines which party absorbs dust and is part of
// the settlement contract, not a rounding convenience.
//
// The zero value is the price 0. D18 values are immutable after creation.
type D18 struct {
	v *big.Int
}

// Pooled big.Int for intermediate products, following the same pattern as
// high-frequency ledger math: amounts are int64 but amount*price needs 128 bits.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

// Zero returns the price 0.
func Zero() D18 {
	return D18{v: new(big.Int)}
}

// One returns the price 1.0 (10^18 raw).
func One() D18 {
	return D18{v: new(big.Int).Set(scale)}
}

// FromInt returns units as a D18 (units * 10^18).
func FromInt(units int64) D18 {
	return D18{v: new(big.Int).Mul(big.NewInt(units), scale)}
}

// FromRaw wraps a raw 18-decimal value. The input is copied.
func FromRaw(raw *big.Int) D18 {
	return D18{v: new(big.Int).Set(raw)}
}

// ParseRaw parses a base-10 raw 18-decimal string, e.g. "1000000000000000000"
// for 1.0. This is the wire format for prices.
func ParseRaw(s string) (D18, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return D18{}, fmt.Errorf("invalid D18 raw value: %q", s)
	}
	if v.Sign() < 0 {
		return D18{}, fmt.Errorf("negative D18 raw value: %q", s)
	}
	return D18{v: v}, nil
}

// Ratio returns num/den as a D18, truncated toward zero.
// Den must be non-zero.
func Ratio(num, den int64) D18 {
	if den == 0 {
		panic("fp: Ratio with zero denominator")
	}
	v := new(big.Int).Mul(big.NewInt(num), scale)
	v.Quo(v, big.NewInt(den))
	return D18{v: v}
}

func (d D18) bigv() *big.Int {
	if d.v == nil {
		return new(big.Int)
	}
	return d.v
}

// IsZero reports whether the price is exactly zero.
func (d D18) IsZero() bool {
	return d.bigv().Sign() == 0
}

// Cmp compares two prices like big.Int.Cmp.
func (d D18) Cmp(o D18) int {
	return d.bigv().Cmp(o.bigv())
}

// MulDown converts amount at this price: amount * d / 10^18, truncated
// toward zero. Used to turn asset/share units into pool-currency units.
func (d D18) MulDown(amount int64) int64 {
	prod := getInt()
	prod.Mul(big.NewInt(amount), d.bigv())
	prod.Quo(prod, scale)
	out := prod.Int64()
	putInt(prod)
	return out
}

// DivDown converts amount back through this price: amount * 10^18 / d,
// truncated toward zero. Used to turn pool-currency units into asset/share
// units. The price must be non-zero.
func (d D18) DivDown(amount int64) int64 {
	v := d.bigv()
	if v.Sign() == 0 {
		panic("fp: DivDown by zero price")
	}
	prod := getInt()
	prod.Mul(big.NewInt(amount), scale)
	prod.Quo(prod, v)
	out := prod.Int64()
	putInt(prod)
	return out
}

// RawString renders the raw 18-decimal value in base 10 (wire format).
func (d D18) RawString() string {
	return d.bigv().String()
}

// String renders the price with a decimal point, trimming trailing zeros,
// e.g. "9", "1.5", "0.000000000000000001".
func (d D18) String() string {
	v := d.bigv()
	q := new(big.Int)
	r := new(big.Int)
	q.QuoRem(v, scale, r)
	if r.Sign() == 0 {
		return q.String()
	}
	frac := fmt.Sprintf("%018s", new(big.Int).Abs(r).String())
	for len(frac) > 0 && frac[len(frac)-1] == '0' {
		frac = frac[:len(frac)-1]
	}
	return fmt.Sprintf("%s.%s", q.String(), frac)
}

// MulDiv computes a * b / den truncated toward zero, with a 128-bit
// intermediate product. Den must be non-zero. This is the primitive behind
// pro-rata allocation: investorPending * approvedAmount / totalPending.
func MulDiv(a, b, den int64) int64 {
	if den == 0 {
		panic("fp: MulDiv with zero denominator")
	}
	prod := getInt()
	prod.Mul(big.NewInt(a), big.NewInt(b))
	prod.Quo(prod, big.NewInt(den))
	out := prod.Int64()
	putInt(prod)
	return out
}

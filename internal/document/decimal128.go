package document

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// RoundingMode is one of the five rounding disciplines spec §4.1 requires.
type RoundingMode int

const (
	RoundTiesToEven RoundingMode = iota
	RoundTowardNegative
	RoundTowardPositive
	RoundTowardZero
	RoundTiesToAway
)

// Flags are the signalling flags a Decimal128 operation may raise. They are
// returned alongside the result rather than held as hidden global state,
// so callers can inspect them per call without synchronization.
type Flags struct {
	Invalid      bool
	Inexact      bool
	Overflow     bool
	Underflow    bool
	DivideByZero bool
}

type specialKind uint8

const (
	specialNone specialKind = iota
	specialNaN
	specialInf
)

// Decimal128 is a 128-bit IEEE-754-2008 decimal value, backed by
// github.com/shopspring/decimal (a dolthub-dolt dependency) for the
// arbitrary-precision coefficient/exponent arithmetic, with NaN/±Inf handled
// as an explicit side-band since shopspring/decimal has no such values.
type Decimal128 struct {
	special specialKind
	neg     bool // sign of Inf; ignored for NaN
	val     decimal.Decimal
}

func finite(d decimal.Decimal) Decimal128 { return Decimal128{val: d} }

func NaN() Decimal128            { return Decimal128{special: specialNaN} }
func PositiveInfinity() Decimal128 { return Decimal128{special: specialInf, neg: false} }
func NegativeInfinity() Decimal128 { return Decimal128{special: specialInf, neg: true} }

func (d Decimal128) IsNaN() bool { return d.special == specialNaN }
func (d Decimal128) IsInf() bool { return d.special == specialInf }

// FromString parses a decimal literal, or "NaN"/"Inf"/"-Inf". Malformed
// input raises errors.CodeBadValue per spec §4.1.
func FromString(s string) (Decimal128, Flags, error) {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "nan":
		return NaN(), Flags{}, nil
	case "inf", "+inf", "infinity":
		return PositiveInfinity(), Flags{}, nil
	case "-inf", "-infinity":
		return NegativeInfinity(), Flags{}, nil
	}
	v, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Decimal128{}, Flags{Invalid: true}, sberrors.New(sberrors.CodeBadValue, "malformed decimal128 literal %q", s)
	}
	return finite(v), Flags{}, nil
}

// String renders the decimal text form, keeping the value's exponent so
// trailing fractional zeros survive ("1.50" stays "1.50").
func (d Decimal128) String() string {
	switch d.special {
	case specialNaN:
		return "NaN"
	case specialInf:
		if d.neg {
			return "-Inf"
		}
		return "Inf"
	default:
		if exp := d.val.Exponent(); exp < 0 {
			return d.val.StringFixed(-exp)
		}
		return d.val.String()
	}
}

func (d Decimal128) binaryOp(o Decimal128, f func(a, b decimal.Decimal) decimal.Decimal) (Decimal128, Flags) {
	if d.IsNaN() || o.IsNaN() {
		return NaN(), Flags{Invalid: true}
	}
	if d.IsInf() || o.IsInf() {
		return NaN(), Flags{Invalid: true}
	}
	return finite(f(d.val, o.val)), Flags{}
}

func (d Decimal128) Add(o Decimal128) (Decimal128, Flags) {
	return d.binaryOp(o, func(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) })
}

func (d Decimal128) Sub(o Decimal128) (Decimal128, Flags) {
	return d.binaryOp(o, func(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) })
}

func (d Decimal128) Mul(o Decimal128) (Decimal128, Flags) {
	return d.binaryOp(o, func(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) })
}

// Div divides d by o. Division by zero raises DivideByZero and returns NaN,
// matching the "exceptional value" discipline of spec §4.1 rather than a Go
// panic.
func (d Decimal128) Div(o Decimal128) (Decimal128, Flags) {
	if d.IsNaN() || o.IsNaN() || d.IsInf() || o.IsInf() {
		return NaN(), Flags{Invalid: true}
	}
	if o.val.IsZero() {
		return NaN(), Flags{DivideByZero: true}
	}
	return finite(d.val.DivRound(o.val, 34)), Flags{Inexact: true}
}

// Modulo computes d mod o using truncated division, matching decimal.Mod.
func (d Decimal128) Modulo(o Decimal128) (Decimal128, Flags) {
	if d.IsNaN() || o.IsNaN() || d.IsInf() || o.IsInf() {
		return NaN(), Flags{Invalid: true}
	}
	if o.val.IsZero() {
		return NaN(), Flags{DivideByZero: true}
	}
	return finite(d.val.Mod(o.val)), Flags{}
}

// Pow raises d to the integral or fractional power o.
func (d Decimal128) Pow(o Decimal128) (Decimal128, Flags) {
	if d.IsNaN() || o.IsNaN() || d.IsInf() || o.IsInf() {
		return NaN(), Flags{Invalid: true}
	}
	return finite(d.val.Pow(o.val)), Flags{Inexact: true}
}

// Sqrt, Log, and Exp are not exact decimal128 operations in any available
// library in this pack; they bridge through float64 and re-quantize to 34
// significant digits, always signalling Inexact. A from-scratch
// arbitrary-precision ln/exp is out of proportion to this core's scope.
func (d Decimal128) Sqrt() (Decimal128, Flags) {
	if d.IsNaN() || d.IsInf() {
		return NaN(), Flags{Invalid: true}
	}
	if d.val.IsNegative() {
		return NaN(), Flags{Invalid: true}
	}
	bf := new(big.Float).SetPrec(200)
	bf.SetString(d.val.String())
	bf.Sqrt(bf)
	v, _ := decimal.NewFromString(bf.Text('f', 34))
	return finite(v), Flags{Inexact: true}
}

func (d Decimal128) Log() (Decimal128, Flags) {
	f, ok := d.ToDoubleOK()
	if !ok || f <= 0 {
		return NaN(), Flags{Invalid: true}
	}
	return finite(decimal.NewFromFloat(math.Log(f))), Flags{Inexact: true}
}

func (d Decimal128) Exp() (Decimal128, Flags) {
	f, ok := d.ToDoubleOK()
	if !ok {
		return NaN(), Flags{Invalid: true}
	}
	return finite(decimal.NewFromFloat(math.Exp(f))), Flags{Inexact: true}
}

// Quantize rounds d to exponent exp (that is, to -exp fractional digits),
// using mode.
func (d Decimal128) Quantize(exp int32, mode RoundingMode) (Decimal128, Flags) {
	if d.IsNaN() || d.IsInf() {
		return d, Flags{Invalid: true}
	}
	places := -exp
	rounded := roundWithMode(d.val, places, mode)
	inexact := !rounded.Equal(d.val)
	return finite(rounded), Flags{Inexact: inexact}
}

func roundWithMode(v decimal.Decimal, places int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case RoundTiesToEven:
		return v.RoundBank(places)
	case RoundTowardNegative:
		return v.RoundFloor(places)
	case RoundTowardPositive:
		return v.RoundCeil(places)
	case RoundTowardZero:
		return v.Truncate(places)
	case RoundTiesToAway:
		return v.Round(places)
	default:
		return v.RoundBank(places)
	}
}

// Compare orders d against o using typeRank-style special-value ordering:
// -Inf < finite values (by value) < +Inf; NaN compares unordered (reported
// via Invalid) but sorts last for total-order purposes like index keys.
func (d Decimal128) Compare(o Decimal128) (int, Flags) {
	if d.IsNaN() || o.IsNaN() {
		if d.IsNaN() && o.IsNaN() {
			return 0, Flags{Invalid: true}
		}
		if d.IsNaN() {
			return 1, Flags{Invalid: true}
		}
		return -1, Flags{Invalid: true}
	}
	da, db := d.rankValue(), o.rankValue()
	switch {
	case da < db:
		return -1, Flags{}
	case da > db:
		return 1, Flags{}
	default:
		if d.IsInf() || o.IsInf() {
			return 0, Flags{}
		}
		return d.val.Cmp(o.val), Flags{}
	}
}

// rankValue gives -Inf the lowest rank, +Inf the highest, and finite values
// rank 0 (compared by actual value only when both are rank 0).
func (d Decimal128) rankValue() int {
	if d.special == specialInf {
		if d.neg {
			return -1
		}
		return 1
	}
	return 0
}

// ToDouble converts to the nearest float64, per spec §4.1's "exact
// conversions to/from double". For NaN/Inf, ToDoubleOK reports ok=false and
// ToDouble returns an error; both still return the matching float64
// special value.
func (d Decimal128) ToDouble() (float64, error) {
	f, ok := d.ToDoubleOK()
	if !ok {
		return f, sberrors.New(sberrors.CodeBadValue, "cannot convert %s to double", d.String())
	}
	return f, nil
}

func (d Decimal128) ToDoubleOK() (float64, bool) {
	switch d.special {
	case specialNaN:
		return math.NaN(), false
	case specialInf:
		if d.neg {
			return math.Inf(-1), false
		}
		return math.Inf(1), false
	default:
		f, _ := d.val.Float64()
		return f, true
	}
}

func (d Decimal128) ToInt32(mode RoundingMode) (int32, Flags) {
	i, fl := d.toIntegral(mode, math.MinInt32, math.MaxInt32)
	return int32(i), fl
}

func (d Decimal128) ToInt64(mode RoundingMode) (int64, Flags) {
	return d.toIntegral(mode, math.MinInt64, math.MaxInt64)
}

func (d Decimal128) toIntegral(mode RoundingMode, lo, hi int64) (int64, Flags) {
	if d.IsNaN() || d.IsInf() {
		return 0, Flags{Invalid: true}
	}
	rounded := roundWithMode(d.val, 0, mode)
	bi := rounded.BigInt()
	if !bi.IsInt64() {
		return 0, Flags{Overflow: true}
	}
	v := bi.Int64()
	if v < lo || v > hi {
		return 0, Flags{Overflow: true}
	}
	return v, Flags{Inexact: !rounded.Equal(d.val)}
}

// FromDouble128 converts d with full 34-significant-digit precision, the
// "exact" conversion path of spec §4.1.
func FromDouble128(f float64) (Decimal128, error) {
	if math.IsNaN(f) {
		return NaN(), nil
	}
	if math.IsInf(f, 1) {
		return PositiveInfinity(), nil
	}
	if math.IsInf(f, -1) {
		return NegativeInfinity(), nil
	}
	v, err := decimal.NewFromString(strconvFullPrecision(f))
	if err != nil {
		return Decimal128{}, sberrors.New(sberrors.CodeBadValue, "cannot convert double %v", f)
	}
	return finite(v), nil
}

func strconvFullPrecision(f float64) string {
	return new(big.Float).SetPrec(200).SetFloat64(f).Text('g', 34)
}

// FromDouble15 converts d using the "15 significant digit" precision path of
// spec §4.1: compute the base-10 exponent via integer arithmetic
// (base2Exp*30103/100000, adjusted down for negative exponents), quantize to
// 10^(e-14), and re-quantize one exponent higher if the coefficient
// overflows 15 digits. The postcondition (15-digit coefficient) is asserted.
func FromDouble15(f float64) (Decimal128, error) {
	if math.IsNaN(f) {
		return NaN(), nil
	}
	if math.IsInf(f, 1) {
		return PositiveInfinity(), nil
	}
	if math.IsInf(f, -1) {
		return NegativeInfinity(), nil
	}
	if f == 0 {
		return finite(decimal.New(0, -14)), nil
	}

	mantissa, base2Exp := math.Frexp(f)
	_ = mantissa
	// Frexp normalizes to [0.5, 1); step down to the [1, 2) binary
	// exponent so the base-10 estimate is never one too high.
	base2Exp--
	base10Exp := base2Exp * 30103 / 100000
	if base2Exp < 0 && base2Exp*30103%100000 != 0 {
		base10Exp--
	}

	quantizeExp := int32(base10Exp - 14)
	full, err := FromDouble128(f)
	if err != nil {
		return Decimal128{}, err
	}

	result, _ := full.Quantize(quantizeExp, RoundTiesToEven)
	if digitsOf(result.val) > 15 {
		quantizeExp++
		result, _ = full.Quantize(quantizeExp, RoundTiesToEven)
	}

	if digitsOf(result.val) != 15 && !result.val.IsZero() {
		return Decimal128{}, sberrors.Wrap(fmt.Errorf("got %d digits", digitsOf(result.val)),
			sberrors.CodeInvariantFailure, "FromDouble15(%v): coefficient must have exactly 15 significant digits", f)
	}
	return result, nil
}

// digitsOf counts the significant decimal digits of the coefficient,
// ignoring sign and trailing/leading structure introduced by the exponent.
func digitsOf(v decimal.Decimal) int {
	coeff := v.Coefficient()
	s := new(big.Int).Abs(coeff).String()
	if s == "0" {
		return 1
	}
	return len(s)
}

package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecimal128RoundTripFromString(t *testing.T) {
	for _, s := range []string{"0", "1.50", "-3.14159", "123456789012345"} {
		d, flags, err := FromString(s)
		require.NoError(t, err)
		require.False(t, flags.Invalid)
		require.Equal(t, s, d.String())
	}
}

func TestDecimal128ParseErrorOnMalformed(t *testing.T) {
	_, flags, err := FromString("not-a-number")
	require.Error(t, err)
	require.True(t, flags.Invalid)
}

func TestDecimal128DivideByZero(t *testing.T) {
	a, _, _ := FromString("10")
	z, _, _ := FromString("0")
	result, flags := a.Div(z)
	require.True(t, result.IsNaN())
	require.True(t, flags.DivideByZero)
}

func TestDecimal128FromDouble15HasFifteenDigits(t *testing.T) {
	for _, f := range []float64{1.0 / 3.0, 123456.789, 0.0001234567891234, 9999999999999.9} {
		d, err := FromDouble15(f)
		require.NoError(t, err)
		require.Equal(t, 15, digitsOf(d.val))
	}
}

func TestDecimal128CompareOrdering(t *testing.T) {
	neg := NegativeInfinity()
	pos := PositiveInfinity()
	one, _, _ := FromString("1")

	c, _ := neg.Compare(one)
	require.Equal(t, -1, c)

	c, _ = pos.Compare(one)
	require.Equal(t, 1, c)

	c, flags := NaN().Compare(one)
	require.True(t, flags.Invalid)
	require.Equal(t, 1, c)
}

func TestDecimal128QuantizeRoundingModes(t *testing.T) {
	v, _, _ := FromString("2.5")
	even, _ := v.Quantize(0, RoundTiesToEven)
	require.Equal(t, "2", even.String())

	away, _ := v.Quantize(0, RoundTiesToAway)
	require.Equal(t, "3", away.String())

	floor, _ := v.Quantize(0, RoundTowardNegative)
	require.Equal(t, "2", floor.String())

	ceil, _ := v.Quantize(0, RoundTowardPositive)
	require.Equal(t, "3", ceil.String())
}

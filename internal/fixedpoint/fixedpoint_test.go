package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivFloors(t *testing.T) {
	got := MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3))
	assert.Equal(t, "3", got.String())

	got = Mul(FromInt(1000), Ratio(1, 100))
	assert.Equal(t, FromInt(10).String(), got.String())
}

func TestRatioTruncates(t *testing.T) {
	assert.Equal(t, "333333333333333333", Ratio(1, 3).String())
	assert.Equal(t, "12333333333333333333", Ratio(37, 3).String())
}

func TestHelpersDoNotMutate(t *testing.T) {
	a := FromInt(2)
	b := FromInt(3)
	_ = Add(a, b)
	_ = Sub(a, b)
	_ = Mul(a, b)
	assert.Equal(t, FromInt(2).String(), a.String())
	assert.Equal(t, FromInt(3).String(), b.String())
}

func TestParseDecimal(t *testing.T) {
	cases := map[string]string{
		"0.01":                  "10000000000000000",
		"1000":                  "1000000000000000000000",
		"1.5":                   "1500000000000000000",
		"0.0000000000000000019": "1",
	}
	for in, want := range cases {
		got, err := ParseDecimal(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}

	_, err := ParseDecimal("-1")
	assert.ErrorIs(t, err, ErrNegative)
	_, err = ParseDecimal("abc")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("1000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, FromInt(1000).String(), v.String())

	_, err = ParseUnits("1e18")
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = ParseUnits("-5")
	assert.ErrorIs(t, err, ErrNegative)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.5", Format(big.NewInt(1500000000000000000)))
	assert.Equal(t, "0", Format(nil))
	assert.Equal(t, "1000", Format(FromInt(1000)))
}

package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickStep(t *testing.T) {
	cases := []struct {
		name string
		px   float64
		perp bool
		want float64
	}{
		{"hundreds", 100, true, 0.01},
		{"hundreds high", 345.6, true, 0.01},
		{"tens", 42.1, true, 0.001},
		{"units", 3.5, true, 0.0001},
		{"sub dollar", 0.5, true, 0.00001},
		{"cents perp capped", 0.004, true, 0.000001},
		{"cents spot", 0.004, false, 0.0000001},
		{"btc scale", 65000, true, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TickStep(tc.px, tc.perp)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, tc.want*1e-9)
		})
	}

	_, err := TickStep(0, true)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = TickStep(-5, true)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestPriceIdempotent(t *testing.T) {
	for _, px := range []float64{0.00123, 0.5171, 3.14159, 42.123456, 100.061, 3456.789, 65432.1} {
		once, err := Price(px, true)
		require.NoError(t, err)
		twice, err := Price(once, true)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "px=%v", px)
	}
}

func TestPriceSideDirectional(t *testing.T) {
	// Buy rounds up or stays; sell rounds down or stays.
	buy, err := PriceSide(100.061, true, true)
	require.NoError(t, err)
	assert.Equal(t, 100.07, buy)

	sell, err := PriceSide(100.069, false, true)
	require.NoError(t, err)
	assert.Equal(t, 100.06, sell)

	// Already aligned prices are untouched on both sides.
	aligned, err := PriceSide(100.06, true, true)
	require.NoError(t, err)
	assert.Equal(t, 100.06, aligned)
	aligned, err = PriceSide(100.06, false, true)
	require.NoError(t, err)
	assert.Equal(t, 100.06, aligned)

	for _, px := range []float64{0.0771, 1.23456, 99.991, 1234.5} {
		b, err := PriceSide(px, true, true)
		require.NoError(t, err)
		s, err := PriceSide(px, false, true)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, b, px, "buy side must never round below raw")
		assert.LessOrEqual(t, s, px, "sell side must never round above raw")
	}
}

func TestSize(t *testing.T) {
	got, err := Size(0.123456, 4)
	require.NoError(t, err)
	assert.Equal(t, 0.1234, got)

	got, err = Size(0.15, 5)
	require.NoError(t, err)
	assert.Equal(t, 0.15, got)

	// Zero lot decimals truncate to whole units.
	got, err = Size(17.9, 0)
	require.NoError(t, err)
	assert.Equal(t, 17.0, got)

	// Scaling error is absorbed (0.3 * 10 = 2.999...96 still yields 0.3)
	// but a value genuinely short of a lot boundary stays floored.
	got, err = Size(0.3, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got)

	got, err = Size(0.9999999999, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	_, err = Size(0, 4)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = Size(-1, 4)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestRoundPerp(t *testing.T) {
	assert.Equal(t, 1234.6, RoundPerp(1234.56789))
	assert.Equal(t, 100.06, RoundPerp(100.06))
	assert.Equal(t, 0.0, RoundPerp(0))
	assert.True(t, SamePerpPrice(1234.56789, 1234.6))
	assert.False(t, SamePerpPrice(1234.5, 1234.6))
}

func TestFormatWire(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want string
	}{
		{100.06, "100.06"},
		{0.0001, "0.0001"},
		{15, "15"},
		{2500.5, "2500.5"},
	} {
		got, err := FormatWire(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

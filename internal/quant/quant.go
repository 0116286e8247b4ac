// Package quant aligns raw prices and sizes to exchange-legal increments.
//
// Hyperliquid derives the price tick from the price magnitude: prices carry
// at most 4 decimal significant digits, capped at 6 decimals for perps and
// 8 for spot. Sizes are quantized to a per-instrument lot decimal count.
package quant

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice = errors.New("quant: price must be positive")
	ErrInvalidSize  = errors.New("quant: size must be positive")
)

const (
	perpMaxDecimals = 6
	spotMaxDecimals = 8
)

// TickStep returns the minimum price increment for the given price level.
func TickStep(px float64, perp bool) (float64, error) {
	if !(px > 0) || math.IsInf(px, 0) || math.IsNaN(px) {
		return 0, ErrInvalidPrice
	}
	max := spotMaxDecimals
	if perp {
		max = perpMaxDecimals
	}
	exp := int(math.Floor(math.Log10(px)))
	dec := 4 - exp
	if dec < 0 {
		dec = 0
	}
	if dec > max {
		dec = max
	}
	return math.Pow(10, -float64(dec)), nil
}

func stepDecimals(step float64) int32 {
	d := int(math.Round(-math.Log10(step)))
	if d < 0 {
		d = 0
	}
	return int32(d)
}

// Price rounds to the nearest tick for the price's own magnitude.
func Price(px float64, perp bool) (float64, error) {
	step, err := TickStep(px, perp)
	if err != nil {
		return 0, err
	}
	return roundToStep(px, step, 0), nil
}

// PriceSide quantizes directionally for the order side: buy prices round
// up, sell prices round down, so rounding never makes the order less
// aggressive than the raw price intended.
func PriceSide(px float64, isBuy, perp bool) (float64, error) {
	step, err := TickStep(px, perp)
	if err != nil {
		return 0, err
	}
	if isBuy {
		return roundToStep(px, step, +1), nil
	}
	return roundToStep(px, step, -1), nil
}

// dir: -1 floor, 0 nearest, +1 ceil.
func roundToStep(px, step float64, dir int) float64 {
	p := decimal.NewFromFloat(px)
	s := decimal.NewFromFloat(step)
	q := p.Div(s)
	switch dir {
	case +1:
		q = q.Ceil()
	case -1:
		q = q.Floor()
	default:
		q = q.Round(0)
	}
	out, _ := q.Mul(s).Round(stepDecimals(step)).Float64()
	return out
}

// Size floors to the instrument's lot decimals. The relative slack on the
// floor absorbs only the float error the scaling multiply introduces; a
// value genuinely below a lot boundary never rounds up to it. A
// reconstruction check in integer lot units guards against float rounding
// having produced a value one lot too high; when detected the result
// steps down by one lot.
func Size(sz float64, decimals int) (float64, error) {
	if !(sz > 0) || math.IsInf(sz, 0) || math.IsNaN(sz) {
		return 0, ErrInvalidSize
	}
	if decimals < 0 {
		decimals = 0
	}
	m := math.Pow(10, float64(decimals))
	scaled := sz * m
	n := math.Floor(scaled + scaled*1e-12)
	q := n / m
	if back := q * m; math.Abs(math.Round(back)-back) > 1e-9 {
		n--
		q = n / m
	}
	if q < 0 {
		q = 0
	}
	return q, nil
}

// RoundPerp normalizes a perp price to 6 decimals and 5 significant
// digits, the form protective trigger prices are submitted in.
func RoundPerp(px float64) float64 {
	d, _ := decimal.NewFromFloat(px).Round(perpMaxDecimals).Float64()
	if d == 0 {
		return 0
	}
	out, err := strconv.ParseFloat(strconv.FormatFloat(d, 'e', 4, 64), 64)
	if err != nil {
		return d
	}
	return out
}

// SamePerpPrice reports whether two prices are equal once normalized the
// way they go out on the wire.
func SamePerpPrice(a, b float64) bool {
	return RoundPerp(a) == RoundPerp(b)
}

// SameSize compares sizes with a tolerance far below any lot step.
func SameSize(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

// FormatWire renders a price or size the way the exchange wants numbers:
// a minimal decimal string without exponent or trailing zeros.
func FormatWire(v float64) (string, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "", fmt.Errorf("quant: non-finite value %v", v)
	}
	return decimal.NewFromFloat(v).String(), nil
}

// Package sizing converts a decision plus account state into an order
// notional and quantity, under one of two mutually exclusive modes.
package sizing

import (
	"math"

	"marlin/internal/logger"
)

type Mode string

const (
	ModeFixed   Mode = "fixed"
	ModeRiskPct Mode = "risk_pct"
)

// Config is the risk section of the process configuration.
type Config struct {
	Mode              Mode
	MinOrderUSD       float64
	PositionUSD       float64
	AcceptModelSizing bool
	RiskPctDefault    float64
	RiskPctMin        float64
	RiskPctMax        float64
	LeverageMax       float64
	NumSymbols        int
}

// Input is the per-decision sizing request. Pointer fields come straight
// from the validated decision and are nil when absent or dropped.
type Input struct {
	AccountValue float64
	MarkPx       float64
	Quantity     *float64
	SizeUSD      *float64
	RiskUSD      *float64
	RiskPct      *float64
	StopLossPx   *float64
	// Leverage is the already-capped target leverage for the open.
	Leverage float64
}

// Result is a derived value, never persisted.
type Result struct {
	SizeUSD  float64
	RiskUSD  float64
	Quantity float64
}

// Compute sizes the order. It never fails outright: degenerate inputs in
// risk_pct mode fall back to the flat notional with a warning.
func Compute(cfg Config, in Input) Result {
	if in.MarkPx <= 0 || in.AccountValue <= 0 {
		logger.Warnf("[sizing] degenerate account/mark (value=%.2f mark=%.4f), sizing zero",
			in.AccountValue, in.MarkPx)
		return Result{}
	}

	clamp := clampFunc(cfg, in.AccountValue)

	if cfg.Mode == ModeFixed {
		return fixedSize(cfg, in, clamp)
	}
	return riskPctSize(cfg, in, clamp)
}

// The per-order ceiling is dynamic: an equal share of equity across the
// tracked instruments, and never more than a third of equity.
func clampFunc(cfg Config, accountValue float64) func(float64) float64 {
	n := cfg.NumSymbols
	if n < 1 {
		n = 1
	}
	bySymbols := math.Floor(accountValue / float64(n))
	byRiskCap := math.Floor(accountValue / 3)
	dynamicMax := math.Min(bySymbols, byRiskCap)
	logger.Debugf("[sizing] dynamic max order: %.2f USD (per-symbol %.2f, equity/3 %.2f)",
		dynamicMax, bySymbols, byRiskCap)
	return func(x float64) float64 {
		return math.Max(cfg.MinOrderUSD, math.Min(dynamicMax, x))
	}
}

func fixedSize(cfg Config, in Input, clamp func(float64) float64) Result {
	if cfg.AcceptModelSizing {
		// Priority: explicit quantity, then risk/stop distance, then
		// explicit USD size; anything missing falls through.
		if in.Quantity != nil && *in.Quantity > 0 {
			size := clamp(*in.Quantity * in.MarkPx)
			risk := 0.0
			if in.RiskUSD != nil {
				risk = *in.RiskUSD
			}
			return Result{SizeUSD: size, RiskUSD: risk, Quantity: size / in.MarkPx}
		}
		if in.RiskUSD != nil && *in.RiskUSD > 0 && in.StopLossPx != nil {
			if dist := math.Abs(in.MarkPx - *in.StopLossPx); dist > 0 {
				size := clamp(*in.RiskUSD / dist * in.MarkPx)
				return Result{SizeUSD: size, RiskUSD: *in.RiskUSD, Quantity: size / in.MarkPx}
			}
		}
		if in.SizeUSD != nil && *in.SizeUSD > 0 {
			size := clamp(*in.SizeUSD)
			return Result{SizeUSD: size, Quantity: size / in.MarkPx}
		}
	}
	size := clamp(cfg.PositionUSD)
	return Result{SizeUSD: size, Quantity: size / in.MarkPx}
}

func riskPctSize(cfg Config, in Input, clamp func(float64) float64) Result {
	if in.StopLossPx == nil {
		logger.Warnf("[sizing] risk_pct mode without stop loss, falling back to fixed notional")
		size := clamp(cfg.PositionUSD)
		return Result{SizeUSD: size, Quantity: size / in.MarkPx}
	}
	dist := math.Abs(in.MarkPx - *in.StopLossPx)
	if !(dist > 0) {
		logger.Warnf("[sizing] stop distance is zero, falling back to fixed notional")
		size := clamp(cfg.PositionUSD)
		return Result{SizeUSD: size, Quantity: size / in.MarkPx}
	}

	pct := cfg.RiskPctDefault
	if cfg.AcceptModelSizing && in.RiskPct != nil {
		pct = *in.RiskPct
	}
	pct = math.Max(cfg.RiskPctMin, math.Min(cfg.RiskPctMax, pct))

	riskUSD := in.AccountValue * pct
	sizeUSD := riskUSD / dist * in.MarkPx

	// A tight stop must not imply leverage beyond policy.
	maxLev := in.Leverage
	if maxLev <= 0 || maxLev > cfg.LeverageMax {
		maxLev = cfg.LeverageMax
	}
	if byLeverage := in.AccountValue * maxLev; sizeUSD > byLeverage {
		logger.Debugf("[sizing] %.2f USD exceeds leverage cap, trimming to %.2f USD",
			sizeUSD, byLeverage)
		sizeUSD = byLeverage
	}

	sizeUSD = clamp(sizeUSD)
	return Result{SizeUSD: sizeUSD, RiskUSD: riskUSD, Quantity: sizeUSD / in.MarkPx}
}

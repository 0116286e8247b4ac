package decision

import (
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"marlin/internal/logger"
	"marlin/internal/pkg/symbol"
)

// Bounds carries the configured limits the validator range-checks against.
type Bounds struct {
	LeverageMax       float64
	MinOpenConfidence float64
}

// ForCoin extracts and validates the decision for one instrument from an
// already schema-checked payload. It returns nil (with a diagnostic) when
// the instrument is missing or the signal is unusable; out-of-range
// numeric fields are dropped to nil instead of invalidating the decision.
func ForCoin(raw []byte, sym string, b Bounds) *Decision {
	coin := symbol.Base(sym)
	node := gjson.GetBytes(raw, coin)
	if !node.Exists() || !node.IsObject() {
		logger.Warnf("[decision %s] no entry in payload", coin)
		return nil
	}

	sig := Signal(strings.ToLower(strings.TrimSpace(node.Get("signal").String())))
	switch sig {
	case SignalBuy, SignalSell, SignalHold:
	default:
		logger.Warnf("[decision %s] invalid signal %q", coin, node.Get("signal").String())
		return nil
	}

	d := &Decision{Coin: coin, Signal: sig}
	if inv := node.Get("invalidation_condition"); inv.Type == gjson.String {
		d.Invalidation = inv.String()
	}

	if sig == SignalHold {
		// Numeric fields are unused downstream for hold; pass through.
		d.Quantity = rawNumber(node, "quantity")
		d.ProfitTarget = rawNumber(node, "profit_target")
		d.StopLoss = rawNumber(node, "stop_loss")
		d.Leverage = rawNumber(node, "leverage")
		d.RiskUSD = rawNumber(node, "risk_usd")
		d.RiskPct = rawNumber(node, "risk_pct")
		d.Confidence = rawNumber(node, "confidence")
		return d
	}

	d.Quantity = boundedNumber(node, coin, "quantity", 0, math.Inf(1))
	d.ProfitTarget = boundedNumber(node, coin, "profit_target", 0, math.Inf(1))
	d.StopLoss = boundedNumber(node, coin, "stop_loss", 0, math.Inf(1))
	d.Leverage = boundedNumber(node, coin, "leverage", 1, 2*b.LeverageMax)
	d.RiskUSD = boundedNumber(node, coin, "risk_usd", 0, math.Inf(1))
	d.RiskPct = boundedNumber(node, coin, "risk_pct", 0, 1)
	d.Confidence = boundedNumber(node, coin, "confidence", 0, 1)

	// Advisory checks only; rejection on confidence happens at open time.
	if d.ProfitTarget == nil || d.StopLoss == nil {
		logger.Warnf("[decision %s] %s decision without full TP/SL", coin, sig)
	}
	if d.Conf() < b.MinOpenConfidence {
		logger.Warnf("[decision %s] confidence %.2f below open threshold %.2f",
			coin, d.Conf(), b.MinOpenConfidence)
	}
	return d
}

func rawNumber(node gjson.Result, field string) *float64 {
	v := node.Get(field)
	if v.Type != gjson.Number {
		return nil
	}
	return ptr(v.Float())
}

func boundedNumber(node gjson.Result, coin, field string, min, max float64) *float64 {
	v := node.Get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	if v.Type != gjson.Number {
		logger.Warnf("[decision %s] %s is not a number, dropping", coin, field)
		return nil
	}
	f := v.Float()
	if math.IsNaN(f) || f < min || f > max {
		logger.Warnf("[decision %s] %s=%v outside [%v, %v], dropping", coin, field, f, min, max)
		return nil
	}
	return ptr(f)
}

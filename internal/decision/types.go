// Package decision models the per-instrument trading decision produced by
// the external decision source, and validates raw payloads at the
// boundary. A Decision is immutable once validated and lives for exactly
// one cycle.
package decision

type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Decision is one validated instruction for one instrument. Optional
// numeric fields are nil when the source omitted them or when validation
// dropped an out-of-range value.
type Decision struct {
	Coin         string
	Signal       Signal
	Quantity     *float64
	ProfitTarget *float64
	StopLoss     *float64
	Leverage     *float64
	RiskUSD      *float64
	RiskPct      *float64
	Confidence   *float64
	Invalidation string
}

func (d *Decision) IsHold() bool {
	return d == nil || d.Signal == SignalHold
}

// Conf returns the confidence, treating absent as zero so every
// confidence gate fails closed.
func (d *Decision) Conf() float64 {
	if d == nil || d.Confidence == nil {
		return 0
	}
	return *d.Confidence
}

// WantsLong reports the direction the decision asks for.
func (d *Decision) WantsLong() bool {
	return d != nil && d.Signal == SignalBuy
}

func ptr(v float64) *float64 { return &v }

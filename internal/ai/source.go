// Package ai produces trading decision payloads from an LLM behind an
// OpenAI-compatible chat API. The engine only sees the raw payload; how
// the decision was produced is this package's concern.
package ai

import (
	"context"
	"time"
)

// DecisionSource returns a payload keyed by coin with per-instrument
// decision fields, to be schema-checked by the decision validator.
type DecisionSource interface {
	Decide(ctx context.Context, snap Snapshot) ([]byte, error)
}

// Snapshot is the market and account context handed to the source each
// cycle.
type Snapshot struct {
	Time    time.Time     `json:"time"`
	Account AccountState  `json:"account"`
	Markets []MarketState `json:"markets"`
}

type AccountState struct {
	AccountValue float64         `json:"account_value"`
	FreeMargin   float64         `json:"free_margin"`
	Positions    []PositionState `json:"positions"`
}

type PositionState struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Quantity      float64  `json:"quantity"`
	EntryPx       float64  `json:"entry_price"`
	CurrentPx     float64  `json:"current_price"`
	Leverage      float64  `json:"leverage"`
	UnrealizedPnl float64  `json:"unrealized_pnl"`
	LiquidationPx float64  `json:"liquidation_price"`
	ProfitTarget  *float64 `json:"profit_target,omitempty"`
	StopLoss      *float64 `json:"stop_loss,omitempty"`
}

type MarketState struct {
	Symbol          string  `json:"symbol"`
	MarkPx          float64 `json:"mark_price"`
	BestBid         float64 `json:"best_bid"`
	BestAsk         float64 `json:"best_ask"`
	Funding         float64 `json:"funding_rate"`
	OpenInterest    float64 `json:"open_interest"`
	OpenInterestAvg float64 `json:"open_interest_avg"`
}

// Package trade is the order-execution and position-reconciliation engine:
// it turns a validated decision into exchange-side state changes and keeps
// protective orders consistent with the live position across cycles.
package trade

import (
	"errors"

	"marlin/internal/gateway/exchange"
	"marlin/internal/pkg/symbol"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) IsBuy() bool { return s == SideLong }

func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OpenPosition is a read-only snapshot of one live position, quantity
// always positive with the direction carried by Side.
type OpenPosition struct {
	Side    Side
	Qty     float64
	EntryPx float64
}

// PositionIn scans an account snapshot for an open position on sym,
// returning nil when flat.
func PositionIn(acct *exchange.AccountSummary, sym string) *OpenPosition {
	if acct == nil {
		return nil
	}
	coin := symbol.Base(sym)
	for _, p := range acct.Positions {
		if !symbol.Matches(p.Coin, coin) || p.Size == 0 {
			continue
		}
		if p.Size > 0 {
			return &OpenPosition{Side: SideLong, Qty: p.Size, EntryPx: p.EntryPx}
		}
		return &OpenPosition{Side: SideShort, Qty: -p.Size, EntryPx: p.EntryPx}
	}
	return nil
}

var (
	// ErrSizeZero reports an order whose size quantizes to nothing.
	ErrSizeZero = errors.New("quantized size is zero")
	// ErrNoLiquidity reports that no usable price reference could be
	// resolved for an aggressive entry.
	ErrNoLiquidity = errors.New("no usable liquidity reference")
	// ErrInsufficientMargin reports that free margin cannot cover the
	// planned order at its leverage.
	ErrInsufficientMargin = errors.New("insufficient free margin")
	// ErrUnfilledEntry reports an entry that did not fill even after the
	// widened retry tier.
	ErrUnfilledEntry = errors.New("entry order did not fill")
	// ErrInvalidBracket reports TP/SL prices on the wrong side of the
	// quantized entry price.
	ErrInvalidBracket = errors.New("take profit and stop loss invalid against entry price")
	// ErrPositionNotClosed reports a flip whose close could not be
	// confirmed within the poll budget.
	ErrPositionNotClosed = errors.New("position closure not confirmed")
)

package trade

import (
	"context"
	"fmt"
	"math"

	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/quant"
)

// syntheticMinSlippageBps widens the slippage cap when the quote is
// synthetic: without a real liquidity signal a tight cap would sit inside
// the fabricated spread and never cross.
const syntheticMinSlippageBps = 60

// EntryPlan is a priced, sized immediate-or-cancel entry ready for
// submission.
type EntryPlan struct {
	Price     float64
	Size      float64
	Synthetic bool
}

// EntryBuilder computes slippage-capped, liquidity-crossing limit prices
// for aggressive entries.
type EntryBuilder struct {
	market *market.Service
}

func NewEntryBuilder(m *market.Service) *EntryBuilder {
	return &EntryBuilder{market: m}
}

// Build quantizes the size, resolves a quote (synthetic if the book is
// empty) and prices the entry: aggressive enough to cross the spread by
// epsTicks, never beyond refPx shifted by maxSlippageBps.
func (b *EntryBuilder) Build(ctx context.Context, sym string, isBuy bool, qty, refPx, maxSlippageBps float64, epsTicks int) (EntryPlan, error) {
	if refPx <= 0 {
		return EntryPlan{}, fmt.Errorf("%w: no reference price for %s", ErrNoLiquidity, sym)
	}

	dec, err := b.market.SzDecimals(ctx, sym)
	if err != nil {
		return EntryPlan{}, fmt.Errorf("resolve lot precision: %w", err)
	}
	size, err := quant.Size(qty, dec)
	if err != nil || size <= 0 {
		return EntryPlan{}, fmt.Errorf("%w: %s qty %.10f at %d decimals", ErrSizeZero, sym, qty, dec)
	}

	bbo, err := b.market.TopOfBook(ctx, sym)
	if err != nil {
		return EntryPlan{}, fmt.Errorf("%w: %v", ErrNoLiquidity, err)
	}
	if bbo.Synthetic && maxSlippageBps < syntheticMinSlippageBps {
		logger.Warnf("[entry %s] synthetic quote, widening slippage cap %.0f -> %d bps",
			sym, maxSlippageBps, syntheticMinSlippageBps)
		maxSlippageBps = syntheticMinSlippageBps
	}

	tick, err := quant.TickStep(refPx, true)
	if err != nil {
		return EntryPlan{}, err
	}
	eps := float64(epsTicks) * tick

	var capPx, raw float64
	if isBuy {
		capPx = refPx * (1 + maxSlippageBps/10000)
		raw = math.Min(capPx, bbo.Ask+eps)
	} else {
		capPx = refPx * (1 - maxSlippageBps/10000)
		raw = math.Max(capPx, bbo.Bid-eps)
	}

	px, err := quant.PriceSide(raw, isBuy, true)
	if err != nil {
		return EntryPlan{}, err
	}

	// The capped price can land at or inside the visible best, where an
	// immediate-or-cancel order cannot match; jump just across the book.
	// Synthetic quotes have no real book to cross.
	if !bbo.Synthetic {
		if isBuy && px <= bbo.Ask {
			px, err = quant.PriceSide(bbo.Ask+tick, true, true)
		} else if !isBuy && px >= bbo.Bid {
			px, err = quant.PriceSide(bbo.Bid-tick, false, true)
		}
		if err != nil {
			return EntryPlan{}, err
		}
	}

	logger.Debugf("[entry %s] ref=%.6f cap=%.6f bbo=%.6f/%.6f px=%.6f size=%.8f synthetic=%v",
		sym, refPx, capPx, bbo.Bid, bbo.Ask, px, size, bbo.Synthetic)
	return EntryPlan{Price: px, Size: size, Synthetic: bbo.Synthetic}, nil
}

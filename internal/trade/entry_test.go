package trade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marlin/internal/gateway/exchange"
)

func TestEntryCrossesSpreadWithinCap(t *testing.T) {
	gw := ethGateway()
	gw.mids = map[string]float64{"ETH": 100}
	gw.meta = []exchange.AssetMeta{{Coin: "ETH", SzDecimals: 4}}
	gw.book = &exchange.L2Book{
		Bids: []exchange.Level{{Px: 100.00, Size: 5}},
		Asks: []exchange.Level{{Px: 100.05, Size: 5}},
	}
	b := NewEntryBuilder(marketFor(gw))

	// cap = 100 * 1.002 = 100.2; raw = min(cap, 100.05 + 0.01) = 100.06.
	plan, err := b.Build(context.Background(), "ETH-PERP", true, 0.5, 100, 20, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.06, plan.Price)
	assert.Equal(t, 0.5, plan.Size)
	assert.False(t, plan.Synthetic)
}

func TestEntryCapBelowAskStillCrosses(t *testing.T) {
	gw := ethGateway()
	gw.mids = map[string]float64{"ETH": 100}
	gw.book = &exchange.L2Book{
		Bids: []exchange.Level{{Px: 100.00, Size: 5}},
		Asks: []exchange.Level{{Px: 100.50, Size: 5}}, // far ask
	}
	b := NewEntryBuilder(marketFor(gw))

	// cap = 100.2 sits below the ask, where an IOC can never match; the
	// final price jumps to one tick past the ask.
	plan, err := b.Build(context.Background(), "ETH-PERP", true, 0.5, 100, 20, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.51, plan.Price, 1e-9)

	// Equality counts as not crossing.
	gw.book.Asks[0].Px = 100.20
	plan, err = b.Build(context.Background(), "ETH-PERP", true, 0.5, 100, 20, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.21, plan.Price, 1e-9)
}

func TestEntrySyntheticQuoteSkipsBookCross(t *testing.T) {
	gw := ethGateway()
	gw.mids = map[string]float64{"ETH": 100}
	gw.book = &exchange.L2Book{}
	b := NewEntryBuilder(marketFor(gw))

	// Synthetic ask = 100.1. A reference below the mark keeps the cap
	// (99 * 1.006 = 99.594) under the fabricated ask; with no real book
	// to cross, the capped price stands.
	plan, err := b.Build(context.Background(), "ETH-PERP", true, 0.5, 99, 20, 1)
	require.NoError(t, err)
	assert.True(t, plan.Synthetic)
	assert.InDelta(t, 99.594, plan.Price, 1e-9)
}

func TestEntrySellSideMirrors(t *testing.T) {
	gw := ethGateway()
	gw.mids = map[string]float64{"ETH": 100}
	gw.book = &exchange.L2Book{
		Bids: []exchange.Level{{Px: 99.95, Size: 5}},
		Asks: []exchange.Level{{Px: 100.00, Size: 5}},
	}
	b := NewEntryBuilder(marketFor(gw))

	// cap = 99.8; raw = max(99.8, 99.95 - 0.01) = 99.94, floor stays.
	plan, err := b.Build(context.Background(), "ETH-PERP", false, 0.5, 100, 20, 1)
	require.NoError(t, err)
	assert.Equal(t, 99.94, plan.Price)
}

func TestEntrySyntheticQuoteWidensCap(t *testing.T) {
	gw := ethGateway()
	gw.mids = map[string]float64{"ETH": 100}
	gw.book = &exchange.L2Book{}
	b := NewEntryBuilder(marketFor(gw))

	// Synthetic ask = 100.1; a 20 bps cap would sit inside the fabricated
	// spread, so it widens to 60 bps and the order crosses.
	plan, err := b.Build(context.Background(), "ETH-PERP", true, 0.5, 100, 20, 1)
	require.NoError(t, err)
	assert.True(t, plan.Synthetic)
	assert.GreaterOrEqual(t, plan.Price, 100.1)
	assert.LessOrEqual(t, plan.Price, 100.6+1e-9)
}

func TestEntrySizeZero(t *testing.T) {
	gw := ethGateway()
	gw.meta = []exchange.AssetMeta{{Coin: "ETH", SzDecimals: 2}}
	b := NewEntryBuilder(marketFor(gw))

	_, err := b.Build(context.Background(), "ETH-PERP", true, 0.004, 3000, 20, 1)
	assert.ErrorIs(t, err, ErrSizeZero)
}

func TestEntryNoReference(t *testing.T) {
	gw := ethGateway()
	gw.mids = map[string]float64{}
	gw.book = &exchange.L2Book{}
	b := NewEntryBuilder(marketFor(gw))

	_, err := b.Build(context.Background(), "ETH-PERP", true, 0.5, 0, 20, 1)
	assert.ErrorIs(t, err, ErrNoLiquidity)

	_, err = b.Build(context.Background(), "ETH-PERP", true, 0.5, 3000, 20, 1)
	assert.ErrorIs(t, err, ErrNoLiquidity, "no book and no mids")
}

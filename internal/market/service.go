// Package market layers price discovery, instrument metadata and account
// enrichment over the raw exchange gateway.
package market

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"marlin/internal/gateway/exchange"
	"marlin/internal/logger"
	"marlin/internal/pkg/symbol"
)

// syntheticSpread is the total relative spread applied around the mark
// price when the order book is empty or unavailable.
const syntheticSpread = 0.002

// BBO is the top of book for one instrument. Synthetic marks a quote
// derived from the mark price rather than resting orders.
type BBO struct {
	Bid       float64
	Ask       float64
	Synthetic bool
}

func (b BBO) Mid() float64 { return (b.Bid + b.Ask) / 2 }

// PositionDetail is an account position joined with live market data and
// the exit plan recovered from open trigger orders.
type PositionDetail struct {
	Coin          string
	Side          string
	Quantity      float64
	EntryPx       float64
	CurrentPx     float64
	Leverage      float64
	LiquidationPx float64
	UnrealizedPnl float64
	NotionalUSD   float64
	ProfitTarget  *float64
	StopLoss      *float64
}

// Service is the market-data facade the trading layer talks to.
type Service struct {
	gw   exchange.Gateway
	meta *MetaCache
}

func NewService(gw exchange.Gateway, metaTTL time.Duration) *Service {
	return &Service{gw: gw, meta: NewMetaCache(gw, metaTTL)}
}

func (s *Service) Meta() *MetaCache { return s.meta }

func (s *Service) SzDecimals(ctx context.Context, sym string) (int, error) {
	return s.meta.SzDecimals(ctx, sym)
}

// MarkPrice resolves the mid price for a symbol from the exchange mid map,
// preferring the perp key over the bare coin.
func (s *Service) MarkPrice(ctx context.Context, sym string) (float64, error) {
	mids, err := s.gw.AllMids(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch mids: %w", err)
	}
	coin := symbol.Base(sym)
	for _, key := range []string{symbol.Perp(coin), coin} {
		if px, ok := mids[key]; ok && px > 0 {
			return px, nil
		}
	}
	return 0, fmt.Errorf("no mid price for %s", coin)
}

// TopOfBook returns the best bid and ask. An empty or unreachable book
// falls back to a synthetic quote spread around the mark price; if the
// mark is unavailable too, the error propagates.
func (s *Service) TopOfBook(ctx context.Context, sym string) (BBO, error) {
	coin := symbol.Base(sym)
	book, err := s.gw.L2Book(ctx, coin)
	if err == nil && book != nil && len(book.Bids) > 0 && len(book.Asks) > 0 {
		bid, ask := book.Bids[0].Px, book.Asks[0].Px
		if bid > 0 && ask > 0 && bid < ask {
			return BBO{Bid: bid, Ask: ask}, nil
		}
	}
	if err != nil {
		logger.Warnf("[market %s] l2 book unavailable: %v", coin, err)
	}

	mark, merr := s.MarkPrice(ctx, sym)
	if merr != nil {
		return BBO{}, fmt.Errorf("no book and no mark for %s: %w", coin, merr)
	}
	half := syntheticSpread / 2
	logger.Warnf("[market %s] using synthetic quote around mark %.6f", coin, mark)
	return BBO{Bid: mark * (1 - half), Ask: mark * (1 + half), Synthetic: true}, nil
}

// FundingOI returns the funding rate and open interest context for a symbol.
func (s *Service) FundingOI(ctx context.Context, sym string) (exchange.AssetCtx, error) {
	_, ctxs, err := s.gw.MetaAndAssetCtxs(ctx)
	if err != nil {
		return exchange.AssetCtx{}, fmt.Errorf("fetch asset contexts: %w", err)
	}
	coin := symbol.Base(sym)
	for _, c := range ctxs {
		if symbol.Matches(c.Coin, coin) {
			return c, nil
		}
	}
	return exchange.AssetCtx{}, fmt.Errorf("no asset context for %s", coin)
}

// AccountSummary is a passthrough kept on the service so callers hold a
// single market handle.
func (s *Service) AccountSummary(ctx context.Context) (*exchange.AccountSummary, error) {
	return s.gw.ClearinghouseState(ctx)
}

// Position returns the open position for one symbol, nil when flat.
func (s *Service) Position(ctx context.Context, sym string) (*exchange.Position, error) {
	acct, err := s.gw.ClearinghouseState(ctx)
	if err != nil {
		return nil, err
	}
	coin := symbol.Base(sym)
	for i := range acct.Positions {
		p := &acct.Positions[i]
		if symbol.Matches(p.Coin, coin) && p.Size != 0 {
			return p, nil
		}
	}
	return nil, nil
}

// EnrichedPositions joins account positions with current prices and the
// exit plan from open trigger orders. Per-position lookups fan out
// concurrently; one failure fails the whole call.
func (s *Service) EnrichedPositions(ctx context.Context) ([]PositionDetail, error) {
	acct, err := s.gw.ClearinghouseState(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.gw.FrontendOpenOrders(ctx)
	if err != nil {
		return nil, err
	}

	details := make([]PositionDetail, len(acct.Positions))
	g, gctx := errgroup.WithContext(ctx)
	for i := range acct.Positions {
		g.Go(func() error {
			d, err := s.enrichOne(gctx, acct.Positions[i], orders)
			if err != nil {
				return err
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *Service) enrichOne(ctx context.Context, p exchange.Position, orders []exchange.OpenOrder) (PositionDetail, error) {
	d := PositionDetail{
		Coin:          symbol.Base(p.Coin),
		Quantity:      p.Size,
		EntryPx:       p.EntryPx,
		Leverage:      p.Leverage,
		LiquidationPx: p.LiquidationPx,
		UnrealizedPnl: p.UnrealizedPnl,
	}
	d.Side = "long"
	if p.Size < 0 {
		d.Side = "short"
		d.Quantity = -p.Size
	}

	px, err := s.MarkPrice(ctx, d.Coin)
	if err != nil {
		return d, err
	}
	d.CurrentPx = px
	d.NotionalUSD = d.Quantity * px

	for _, o := range orders {
		if !symbol.Matches(o.Coin, d.Coin) || !o.ReduceOnly || !o.IsTrigger {
			continue
		}
		// A reduce-only trigger above the mark exits a long in profit and
		// a short at a loss; below the mark it is the reverse.
		above := o.TriggerPx > px
		if (d.Side == "long") == above {
			tp := o.TriggerPx
			d.ProfitTarget = &tp
		} else {
			sl := o.TriggerPx
			d.StopLoss = &sl
		}
	}
	return d, nil
}

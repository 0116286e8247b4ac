package app

import (
	"context"
	"fmt"
	"time"

	"marlin/internal/ai"
	"marlin/internal/decision"
	"marlin/internal/logger"
	"marlin/internal/pkg/symbol"
)

// Cycle runs one full decision round: snapshot, ask the decision source,
// validate, then apply per instrument. One instrument's failure never
// blocks the others.
func (a *App) Cycle(ctx context.Context) error {
	a.mu.RLock()
	cfg := a.cfg
	engine := a.engine
	symbols := a.symbols
	a.mu.RUnlock()

	snap, err := a.snapshot(ctx, symbols)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	raw, err := a.source.Decide(ctx, *snap)
	if err != nil {
		return fmt.Errorf("decision source: %w", err)
	}
	if err := decision.CheckPayload(raw); err != nil {
		return fmt.Errorf("decision payload rejected: %w", err)
	}

	acct, err := a.market.AccountSummary(ctx)
	if err != nil {
		return fmt.Errorf("account summary: %w", err)
	}

	bounds := decision.Bounds{
		LeverageMax:       cfg.Risk.LeverageMax,
		MinOpenConfidence: cfg.Policy.MinOpenConfidence,
	}
	var failed int
	for _, sym := range symbols {
		d := decision.ForCoin(raw, sym, bounds)
		if err := engine.Apply(ctx, sym, d, acct); err != nil {
			failed++
			logger.Errorf("[cycle] %s: %v", sym, err)
			a.notifier.Send(ctx, fmt.Sprintf("%s: action failed: %v", sym, err))
			continue
		}
		if d != nil && !d.IsHold() {
			a.notifier.Send(ctx, fmt.Sprintf("%s: %s applied (confidence %.2f)", sym, d.Signal, d.Conf()))
		}
	}
	if failed == len(symbols) && failed > 0 {
		return fmt.Errorf("all %d instruments failed this cycle", failed)
	}
	return nil
}

// snapshot gathers the account and per-market context handed to the
// decision source.
func (a *App) snapshot(ctx context.Context, symbols []string) (*ai.Snapshot, error) {
	acct, err := a.market.AccountSummary(ctx)
	if err != nil {
		return nil, err
	}
	details, err := a.market.EnrichedPositions(ctx)
	if err != nil {
		logger.Warnf("[cycle] position enrichment failed, sending bare account: %v", err)
		details = nil
	}

	snap := &ai.Snapshot{
		Time: time.Now().UTC(),
		Account: ai.AccountState{
			AccountValue: acct.AccountValue,
			FreeMargin:   acct.FreeMargin(),
		},
	}
	for _, d := range details {
		snap.Account.Positions = append(snap.Account.Positions, ai.PositionState{
			Symbol:        symbol.Perp(d.Coin),
			Side:          d.Side,
			Quantity:      d.Quantity,
			EntryPx:       d.EntryPx,
			CurrentPx:     d.CurrentPx,
			Leverage:      d.Leverage,
			UnrealizedPnl: d.UnrealizedPnl,
			LiquidationPx: d.LiquidationPx,
			ProfitTarget:  d.ProfitTarget,
			StopLoss:      d.StopLoss,
		})
	}

	for _, sym := range symbols {
		ms, err := a.marketState(ctx, sym)
		if err != nil {
			logger.Warnf("[cycle] market state %s: %v", sym, err)
			continue
		}
		snap.Markets = append(snap.Markets, ms)
	}
	if len(snap.Markets) == 0 {
		return nil, fmt.Errorf("no market state for any tracked instrument")
	}
	return snap, nil
}

func (a *App) marketState(ctx context.Context, sym string) (ai.MarketState, error) {
	coin := symbol.Base(sym)
	ms := ai.MarketState{Symbol: sym}

	mark, err := a.market.MarkPrice(ctx, sym)
	if err != nil {
		return ms, err
	}
	ms.MarkPx = mark

	if bbo, err := a.market.TopOfBook(ctx, sym); err == nil {
		ms.BestBid, ms.BestAsk = bbo.Bid, bbo.Ask
	}
	if fo, err := a.market.FundingOI(ctx, sym); err == nil {
		ms.Funding = fo.Funding
		ms.OpenInterest = fo.OpenInterest
		avg, _ := a.oi.Update(coin, fo.OpenInterest)
		ms.OpenInterestAvg = avg
	} else {
		logger.Warnf("[cycle] funding/oi %s: %v", sym, err)
	}
	return ms, nil
}

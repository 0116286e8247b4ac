package trade

import (
	"context"
	"fmt"
	"math"
	"time"

	"marlin/internal/decision"
	"marlin/internal/gateway/exchange"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/pkg/symbol"
	"marlin/internal/sizing"
)

// Policy selects how a new decision interacts with existing exchange state.
type Policy string

const (
	PolicyIgnore          Policy = "ignore"
	PolicyUpdateTpSl      Policy = "update_tp_sl"
	PolicyFlipIfConfident Policy = "flip_if_confident"
	PolicyFlipAndUpdate   Policy = "flip_and_update"
)

// DecisionRecorder receives every non-hold decision for audit. Recording
// is fire and forget; implementations must never block order flow.
type DecisionRecorder interface {
	Record(sym string, d *decision.Decision)
}

// EngineConfig is the policy surface of the engine, assembled from process
// configuration at startup.
type EngineConfig struct {
	Policy            Policy
	FlipConfidence    float64
	MinOpenConfidence float64
	LeverageMax       float64
	LeverageCross     bool
	SyncLeverage      bool

	// Default protective distances, in percent of entry, used when the
	// decision omits a target.
	DefaultTpPct float64
	DefaultSlPct float64

	// EntrySlippagePct biases the entry reference in the trade direction
	// before the bps cap is measured; the close path reuses the bias.
	EntrySlippagePct    float64
	MaxEntrySlippageBps float64
	EntryEpsTicks       int
	CloseSlippageBps    float64

	Sizing sizing.Config

	// Closure poll after a flip's reduce-only close.
	PollInterval time.Duration
	PollAttempts int
}

func (c *EngineConfig) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 5
	}
	if c.CloseSlippageBps <= 0 {
		c.CloseSlippageBps = 300
	}
}

// Engine is the per-cycle state machine combining the new decision, the
// open position and pending orders into one action.
type Engine struct {
	cfg      EngineConfig
	gw       exchange.Gateway
	market   *market.Service
	exec     *Executor
	rec      *Reconciler
	recorder DecisionRecorder
}

func NewEngine(cfg EngineConfig, gw exchange.Gateway, m *market.Service, recorder DecisionRecorder) *Engine {
	cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		gw:       gw,
		market:   m,
		exec:     NewExecutor(gw, m),
		rec:      NewReconciler(gw, m),
		recorder: recorder,
	}
}

type action int

const (
	actNone action = iota
	actOpen
	actCancelReopen
	actUpdateTargets
	actFlip
)

// decide maps (policy, position state, signal direction) to an action.
// Hold always short-circuits regardless of state.
func decide(p Policy, d *decision.Decision, pos *OpenPosition, pendingEntry bool, flipConfidence float64) action {
	if d == nil || d.IsHold() {
		return actNone
	}
	if pos == nil {
		if !pendingEntry {
			return actOpen
		}
		if p == PolicyIgnore {
			return actNone
		}
		return actCancelReopen
	}
	if p == PolicyIgnore {
		return actNone
	}
	sameDirection := d.WantsLong() == (pos.Side == SideLong)
	if sameDirection || p == PolicyUpdateTpSl {
		return actUpdateTargets
	}
	if d.Conf() >= flipConfidence {
		return actFlip
	}
	return actUpdateTargets
}

// Apply runs one cycle for one instrument. Errors are per-instrument; the
// caller keeps processing the others.
func (e *Engine) Apply(ctx context.Context, sym string, d *decision.Decision, acct *exchange.AccountSummary) error {
	coin := symbol.Base(sym)
	if d == nil {
		logger.Debugf("[policy %s] no decision this cycle", coin)
		return nil
	}
	if !d.IsHold() && e.recorder != nil {
		e.recorder.Record(sym, d)
	}

	pos := PositionIn(acct, sym)
	pending, err := e.hasPendingEntry(ctx, coin)
	if err != nil {
		return err
	}

	switch decide(e.cfg.Policy, d, pos, pending, e.cfg.FlipConfidence) {
	case actNone:
		logger.Debugf("[policy %s] no action (signal=%s policy=%s)", coin, d.Signal, e.cfg.Policy)
		return nil
	case actOpen:
		return e.open(ctx, sym, d, acct)
	case actCancelReopen:
		if err := e.cancelPendingEntries(ctx, coin); err != nil {
			return err
		}
		return e.open(ctx, sym, d, acct)
	case actUpdateTargets:
		return e.rec.Reconcile(ctx, sym, pos, d.ProfitTarget, d.StopLoss)
	case actFlip:
		return e.flip(ctx, sym, pos, d)
	}
	return nil
}

func (e *Engine) hasPendingEntry(ctx context.Context, coin string) (bool, error) {
	orders, err := e.gw.FrontendOpenOrders(ctx)
	if err != nil {
		return false, fmt.Errorf("query open orders for %s: %w", coin, err)
	}
	for _, o := range orders {
		if symbol.Matches(o.Coin, coin) && !o.ReduceOnly && !o.IsTrigger {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) cancelPendingEntries(ctx context.Context, coin string) error {
	orders, err := e.gw.FrontendOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("query open orders for %s: %w", coin, err)
	}
	for _, o := range orders {
		if !symbol.Matches(o.Coin, coin) || o.ReduceOnly || o.IsTrigger {
			continue
		}
		if err := e.gw.CancelOrder(ctx, coin, o.OID); err != nil {
			return fmt.Errorf("cancel stale entry %d for %s: %w", o.OID, coin, err)
		}
		logger.Infof("[policy %s] cancelled stale pending entry %d", coin, o.OID)
	}
	return nil
}

func (e *Engine) open(ctx context.Context, sym string, d *decision.Decision, acct *exchange.AccountSummary) error {
	coin := symbol.Base(sym)
	if d.Conf() < e.cfg.MinOpenConfidence {
		logger.Infof("[policy %s] confidence %.2f below open threshold %.2f, skipping open",
			coin, d.Conf(), e.cfg.MinOpenConfidence)
		return nil
	}

	mark, err := e.market.MarkPrice(ctx, sym)
	if err != nil {
		return fmt.Errorf("open %s: %w", coin, err)
	}

	lev := e.effectiveLeverage(d)
	if e.cfg.SyncLeverage {
		if err := e.gw.UpdateLeverage(ctx, coin, e.cfg.LeverageCross, int(math.Round(lev))); err != nil {
			logger.Warnf("[policy %s] leverage sync failed: %v", coin, err)
		}
	}

	res := sizing.Compute(e.cfg.Sizing, sizing.Input{
		AccountValue: acct.AccountValue,
		MarkPx:       mark,
		Quantity:     d.Quantity,
		RiskUSD:      d.RiskUSD,
		RiskPct:      d.RiskPct,
		StopLossPx:   d.StopLoss,
		Leverage:     lev,
	})
	if res.SizeUSD <= 0 || res.Quantity <= 0 {
		return fmt.Errorf("%w: sizing produced nothing for %s", ErrSizeZero, coin)
	}

	required := res.SizeUSD / lev
	if free := acct.FreeMargin(); required > free {
		logger.Errorf("[policy %s] margin short: need %.2f USD, free %.2f USD", coin, required, free)
		return fmt.Errorf("%w: need %.2f, free %.2f", ErrInsufficientMargin, required, free)
	}

	isBuy := d.WantsLong()
	tp, sl := e.targets(d, mark, isBuy)

	logger.Infof("[policy %s] opening %s: %.2f USD (%.8f units) @ ~%.6f lev=%.1f tp=%.6f sl=%.6f",
		coin, d.Signal, res.SizeUSD, res.Quantity, mark, lev, tp, sl)
	_, err = e.exec.PlaceBracket(ctx, BracketRequest{
		Symbol:         sym,
		IsBuy:          isBuy,
		Qty:            res.Quantity,
		EntryRef:       e.slippageRef(mark, isBuy),
		TpPrice:        tp,
		SlPrice:        sl,
		MaxSlippageBps: e.cfg.MaxEntrySlippageBps,
		EpsTicks:       e.cfg.EntryEpsTicks,
	})
	return err
}

func (e *Engine) effectiveLeverage(d *decision.Decision) float64 {
	lev := e.cfg.LeverageMax
	if d.Leverage != nil && *d.Leverage < lev {
		lev = *d.Leverage
	}
	if lev < 1 {
		lev = 1
	}
	return lev
}

// slippageRef shifts a reference price in the trade direction so the bps
// cap is measured from a slightly aggressive base rather than the raw
// mark.
func (e *Engine) slippageRef(mark float64, isBuy bool) float64 {
	slip := e.cfg.EntrySlippagePct / 100
	if isBuy {
		return mark * (1 + slip)
	}
	return mark * (1 - slip)
}

// targets fills in defaults, as a percent distance from the reference,
// when the decision omits a protective price.
func (e *Engine) targets(d *decision.Decision, ref float64, isBuy bool) (tp, sl float64) {
	sign := 1.0
	if !isBuy {
		sign = -1.0
	}
	tp = ref * (1 + sign*e.cfg.DefaultTpPct/100)
	sl = ref * (1 - sign*e.cfg.DefaultSlPct/100)
	if d.ProfitTarget != nil && *d.ProfitTarget > 0 {
		tp = *d.ProfitTarget
	}
	if d.StopLoss != nil && *d.StopLoss > 0 {
		sl = *d.StopLoss
	}
	return tp, sl
}

// flip closes the open position and, only once closure is confirmed,
// opens the opposite one. Any unverified step aborts, leaving the account
// flat rather than risking a doubled position.
func (e *Engine) flip(ctx context.Context, sym string, pos *OpenPosition, d *decision.Decision) error {
	coin := symbol.Base(sym)
	logger.Infof("[policy %s] flipping %s -> %s (confidence %.2f)", coin, pos.Side, pos.Side.Opposite(), d.Conf())

	if err := e.cancelProtectives(ctx, coin); err != nil {
		return err
	}
	if err := e.closePosition(ctx, sym, pos); err != nil {
		return err
	}
	if err := e.awaitFlat(ctx, sym); err != nil {
		return err
	}

	// Margin state changed with the close; re-snapshot before sizing.
	acct, err := e.gw.ClearinghouseState(ctx)
	if err != nil {
		return fmt.Errorf("flip %s: refresh account: %w", coin, err)
	}
	return e.open(ctx, sym, d, acct)
}

func (e *Engine) cancelProtectives(ctx context.Context, coin string) error {
	orders, err := e.gw.FrontendOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("flip %s: query protective orders: %w", coin, err)
	}
	for _, o := range orders {
		if !symbol.Matches(o.Coin, coin) || !o.ReduceOnly || !o.IsTrigger {
			continue
		}
		if err := e.gw.CancelOrder(ctx, coin, o.OID); err != nil {
			return fmt.Errorf("flip %s: cancel protective %d: %w", coin, o.OID, err)
		}
		logger.Infof("[policy %s] cancelled protective order %d", coin, o.OID)
	}
	return nil
}

func (e *Engine) closePosition(ctx context.Context, sym string, pos *OpenPosition) error {
	coin := symbol.Base(sym)
	mark, err := e.market.MarkPrice(ctx, sym)
	if err != nil {
		return fmt.Errorf("flip %s: %w", coin, err)
	}

	closeBuy := pos.Side == SideShort
	plan, err := e.exec.entry.Build(ctx, sym, closeBuy, pos.Qty,
		e.slippageRef(mark, closeBuy), e.cfg.CloseSlippageBps, retryMinEpsTicks)
	if err != nil {
		return fmt.Errorf("flip %s: price close: %w", coin, err)
	}

	order := exchange.OrderRequest{
		Coin: coin, IsBuy: closeBuy, Size: plan.Size, LimitPx: plan.Price, ReduceOnly: true,
		Cloid: newCloid(),
		Type:  exchange.OrderType{Limit: &exchange.LimitOrderType{Tif: exchange.TifIoc}},
	}
	resp, err := e.gw.PlaceOrders(ctx, []exchange.OrderRequest{order}, exchange.GroupingNone)
	if err != nil {
		return fmt.Errorf("flip %s: submit close: %w", coin, err)
	}
	if !resp.OK() {
		return fmt.Errorf("flip %s: close rejected: exchange status %q", coin, respStatus(resp))
	}
	for _, st := range resp.Statuses {
		if st.Error != "" {
			return fmt.Errorf("flip %s: close rejected: %s", coin, st.Error)
		}
	}
	return nil
}

// awaitFlat polls for position closure on a fixed interval with a hard
// attempt ceiling.
func (e *Engine) awaitFlat(ctx context.Context, sym string) error {
	coin := symbol.Base(sym)
	for attempt := 1; attempt <= e.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
		pos, err := e.market.Position(ctx, sym)
		if err != nil {
			logger.Warnf("[policy %s] closure poll %d/%d: %v", coin, attempt, e.cfg.PollAttempts, err)
			continue
		}
		if pos == nil {
			logger.Infof("[policy %s] position closed after %d poll(s)", coin, attempt)
			return nil
		}
		logger.Debugf("[policy %s] still open (%.8f) on poll %d/%d", coin, pos.Size, attempt, e.cfg.PollAttempts)
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrPositionNotClosed, coin, e.cfg.PollAttempts)
}

package trade

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"marlin/internal/gateway/exchange"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/pkg/symbol"
	"marlin/internal/quant"
)

const (
	retryMinSlippageBps = 300
	retryMinEpsTicks    = 2
)

// BracketRequest describes one entry plus its protective targets.
type BracketRequest struct {
	Symbol         string
	IsBuy          bool
	Qty            float64
	EntryRef       float64
	TpPrice        float64
	SlPrice        float64
	MaxSlippageBps float64
	EpsTicks       int
}

// BracketResult reports what actually happened at the exchange.
type BracketResult struct {
	EntryOID  int64
	FilledQty float64
	AvgPx     float64
	Retried   bool
}

// Executor places bracket orders: an immediate-or-cancel entry with a
// widened-slippage retry tier, then reduce-only protective triggers sized
// to the filled quantity.
type Executor struct {
	gw     exchange.Gateway
	market *market.Service
	entry  *EntryBuilder
}

func NewExecutor(gw exchange.Gateway, m *market.Service) *Executor {
	return &Executor{gw: gw, market: m, entry: NewEntryBuilder(m)}
}

// PlaceBracket runs the full sequence. Protective orders are only ever
// submitted against a confirmed fill.
func (e *Executor) PlaceBracket(ctx context.Context, req BracketRequest) (*BracketResult, error) {
	plan, err := e.entry.Build(ctx, req.Symbol, req.IsBuy, req.Qty, req.EntryRef, req.MaxSlippageBps, req.EpsTicks)
	if err != nil {
		return nil, err
	}
	if err := checkBracket(req.IsBuy, plan.Price, req.TpPrice, req.SlPrice); err != nil {
		return nil, err
	}

	res, err := e.submitEntry(ctx, req, plan)
	if err != nil {
		return nil, err
	}
	if res.FilledQty <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnfilledEntry, req.Symbol)
	}

	if err := e.placeProtective(ctx, req, res.FilledQty); err != nil {
		return res, err
	}
	return res, nil
}

// checkBracket validates targets against the quantized entry price, not
// the raw reference.
func checkBracket(isBuy bool, entryPx, tp, sl float64) error {
	if tp <= 0 || sl <= 0 {
		return fmt.Errorf("%w: tp=%.6f sl=%.6f", ErrInvalidBracket, tp, sl)
	}
	ok := sl < entryPx && entryPx < tp
	if !isBuy {
		ok = tp < entryPx && entryPx < sl
	}
	if !ok {
		return fmt.Errorf("%w: entry=%.6f tp=%.6f sl=%.6f buy=%v", ErrInvalidBracket, entryPx, tp, sl, isBuy)
	}
	return nil
}

func (e *Executor) submitEntry(ctx context.Context, req BracketRequest, plan EntryPlan) (*BracketResult, error) {
	res, retriable, err := e.tryEntry(ctx, req.Symbol, req.IsBuy, plan)
	if err == nil || !retriable {
		return res, err
	}

	// Widen the cap and cross deeper, once.
	bps := math.Max(2*req.MaxSlippageBps, retryMinSlippageBps)
	eps := req.EpsTicks + 1
	if eps < retryMinEpsTicks {
		eps = retryMinEpsTicks
	}
	logger.Warnf("[bracket %s] entry missed liquidity, retrying with %.0f bps cap and %d eps ticks",
		req.Symbol, bps, eps)

	plan2, err := e.entry.Build(ctx, req.Symbol, req.IsBuy, req.Qty, req.EntryRef, bps, eps)
	if err != nil {
		return nil, err
	}
	res, _, err = e.tryEntry(ctx, req.Symbol, req.IsBuy, plan2)
	if err != nil {
		return nil, err
	}
	res.Retried = true
	return res, nil
}

// tryEntry submits one IOC entry. The middle return reports whether a
// failure is the no-immediate-match kind that the retry tier may fix.
func (e *Executor) tryEntry(ctx context.Context, sym string, isBuy bool, plan EntryPlan) (*BracketResult, bool, error) {
	order := exchange.OrderRequest{
		Coin:    symbol.Base(sym),
		IsBuy:   isBuy,
		Size:    plan.Size,
		LimitPx: plan.Price,
		Cloid:   newCloid(),
		Type:    exchange.OrderType{Limit: &exchange.LimitOrderType{Tif: exchange.TifIoc}},
	}
	resp, err := e.gw.PlaceOrders(ctx, []exchange.OrderRequest{order}, exchange.GroupingNone)
	if err != nil {
		return nil, false, fmt.Errorf("submit entry: %w", err)
	}
	if !resp.OK() || len(resp.Statuses) == 0 {
		return nil, false, fmt.Errorf("submit entry %s: exchange status %q", sym, respStatus(resp))
	}

	st := resp.Statuses[0]
	switch {
	case st.Filled != nil:
		logger.Infof("[bracket %s] entry filled %.8f @ %.6f (oid %d)",
			sym, st.Filled.TotalSize, st.Filled.AvgPx, st.Filled.OID)
		return &BracketResult{EntryOID: st.Filled.OID, FilledQty: st.Filled.TotalSize, AvgPx: st.Filled.AvgPx}, false, nil
	case st.Error != "":
		return nil, isNoMatchError(st.Error), fmt.Errorf("entry %s rejected: %s", sym, st.Error)
	case st.Resting != nil:
		// IOC must not rest; treat as unfilled and clean up.
		logger.Warnf("[bracket %s] ioc entry unexpectedly resting (oid %d), cancelling", sym, st.Resting.OID)
		if cerr := e.gw.CancelOrder(ctx, symbol.Base(sym), st.Resting.OID); cerr != nil {
			logger.Errorf("[bracket %s] cancel resting entry %d: %v", sym, st.Resting.OID, cerr)
		}
		return nil, false, fmt.Errorf("%w: %s rested instead of filling", ErrUnfilledEntry, sym)
	default:
		return nil, false, fmt.Errorf("entry %s: empty order status", sym)
	}
}

func (e *Executor) placeProtective(ctx context.Context, req BracketRequest, filledQty float64) error {
	dec, err := e.market.SzDecimals(ctx, req.Symbol)
	if err != nil {
		return fmt.Errorf("resolve lot precision for protective orders: %w", err)
	}
	size, err := quant.Size(filledQty, dec)
	if err != nil || size <= 0 {
		return fmt.Errorf("%w: filled %.10f quantizes to nothing", ErrSizeZero, filledQty)
	}

	coin := symbol.Base(req.Symbol)
	tp := quant.RoundPerp(req.TpPrice)
	sl := quant.RoundPerp(req.SlPrice)
	exitBuy := !req.IsBuy

	orders := []exchange.OrderRequest{
		{
			Coin: coin, IsBuy: exitBuy, Size: size, LimitPx: tp, ReduceOnly: true,
			Cloid: newCloid(),
			Type: exchange.OrderType{Trigger: &exchange.TriggerOrderType{
				TriggerPx: tp, IsMarket: true, TpSl: exchange.TriggerTp,
			}},
		},
		{
			Coin: coin, IsBuy: exitBuy, Size: size, LimitPx: sl, ReduceOnly: true,
			Cloid: newCloid(),
			Type: exchange.OrderType{Trigger: &exchange.TriggerOrderType{
				TriggerPx: sl, IsMarket: true, TpSl: exchange.TriggerSl,
			}},
		},
	}

	resp, err := e.gw.PlaceOrders(ctx, orders, exchange.GroupingPositionTpsl)
	if err != nil {
		return fmt.Errorf("submit protective orders: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("submit protective orders %s: exchange status %q", coin, respStatus(resp))
	}
	// Order-level errors inside an accepted batch are logged, not raised;
	// the position exists either way and the reconciler repairs gaps.
	for i, st := range resp.Statuses {
		kind := "tp"
		if i == 1 {
			kind = "sl"
		}
		if st.Error != "" {
			logger.Errorf("[bracket %s] %s order rejected: %s", coin, kind, st.Error)
		}
	}
	logger.Infof("[bracket %s] protective orders placed: tp=%.6f sl=%.6f size=%.8f", coin, tp, sl, size)
	return nil
}

// isNoMatchError recognizes the exchange's IOC no-liquidity rejections.
func isNoMatchError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "could not immediately match") ||
		strings.Contains(m, "no resting orders")
}

func respStatus(r *exchange.OrderResponse) string {
	if r == nil {
		return ""
	}
	return r.Status
}

func newCloid() string {
	return "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

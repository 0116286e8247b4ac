package trade

import (
	"context"
	"fmt"
	"math"

	"marlin/internal/gateway/exchange"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/pkg/symbol"
	"marlin/internal/quant"
)

// Reconciler diffs desired protective targets against resting orders and
// cancels/replaces only what changed.
type Reconciler struct {
	gw     exchange.Gateway
	market *market.Service
}

func NewReconciler(gw exchange.Gateway, m *market.Service) *Reconciler {
	return &Reconciler{gw: gw, market: m}
}

// protective is one resting reduce-only trigger classified as TP or SL.
type protective struct {
	order exchange.OpenOrder
	isTP  bool
}

// Reconcile updates the TP/SL orders for an open position. Desired prices
// on the wrong side of the mark are discarded; if both are unusable the
// resting orders stay untouched so a bad decision never strips protection.
func (r *Reconciler) Reconcile(ctx context.Context, sym string, pos *OpenPosition, desiredTP, desiredSL *float64) error {
	if pos == nil || pos.Qty <= 0 {
		return nil
	}
	coin := symbol.Base(sym)

	mark, err := r.market.MarkPrice(ctx, sym)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", coin, err)
	}

	tp := validTarget(desiredTP, pos.Side, mark, true)
	sl := validTarget(desiredSL, pos.Side, mark, false)
	if tp == nil && sl == nil {
		logger.Warnf("[reconcile %s] no usable targets in decision, leaving protection as is", coin)
		return nil
	}

	curTP, curSL, err := r.restingTargets(ctx, coin, pos, mark)
	if err != nil {
		return err
	}

	if tp != nil {
		if err := r.replaceIfChanged(ctx, coin, pos, curTP, *tp, true); err != nil {
			return err
		}
	}
	if sl != nil {
		if err := r.replaceIfChanged(ctx, coin, pos, curSL, *sl, false); err != nil {
			return err
		}
	}
	return nil
}

// validTarget keeps a desired target only when it sits on the profitable
// (TP) or losing (SL) side of the mark for the position's direction.
func validTarget(px *float64, side Side, mark float64, isTP bool) *float64 {
	if px == nil || *px <= 0 {
		return nil
	}
	// For a long, TP must be above mark and SL below; mirrored for short.
	wantAbove := (side == SideLong) == isTP
	if (*px > mark) != wantAbove {
		logger.Warnf("[reconcile] target %.6f on wrong side of mark %.6f (side=%s tp=%v), dropping",
			*px, mark, side, isTP)
		return nil
	}
	return px
}

// restingTargets classifies the position's reduce-only triggers. With
// several candidates per kind, the one sized closest to the live position
// wins, so stale leftovers from prior partial fills do not skew the match.
func (r *Reconciler) restingTargets(ctx context.Context, coin string, pos *OpenPosition, mark float64) (tp, sl *protective, err error) {
	orders, err := r.gw.FrontendOpenOrders(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile %s: query resting orders: %w", coin, err)
	}
	for _, o := range orders {
		if !symbol.Matches(o.Coin, coin) || !o.ReduceOnly || !o.IsTrigger {
			continue
		}
		isTP := (pos.Side == SideLong) == (o.TriggerPx > mark)
		cand := &protective{order: o, isTP: isTP}
		if isTP {
			tp = closerSized(tp, cand, pos.Qty)
		} else {
			sl = closerSized(sl, cand, pos.Qty)
		}
	}
	return tp, sl, nil
}

func closerSized(cur, cand *protective, qty float64) *protective {
	if cur == nil {
		return cand
	}
	if math.Abs(cand.order.Size-qty) < math.Abs(cur.order.Size-qty) {
		return cand
	}
	return cur
}

// replaceIfChanged cancels and re-places one protective order when its
// price or size drifted; unchanged orders are left resting to minimize
// churn. Cancellation must succeed before the replacement is submitted,
// and the placement is verified by re-query.
func (r *Reconciler) replaceIfChanged(ctx context.Context, coin string, pos *OpenPosition, cur *protective, desiredPx float64, isTP bool) error {
	kind := "sl"
	tpsl := exchange.TriggerSl
	if isTP {
		kind = "tp"
		tpsl = exchange.TriggerTp
	}
	px := quant.RoundPerp(desiredPx)

	dec, err := r.market.SzDecimals(ctx, coin)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", coin, err)
	}
	size, err := quant.Size(pos.Qty, dec)
	if err != nil || size <= 0 {
		return fmt.Errorf("%w: position %.10f quantizes to nothing", ErrSizeZero, pos.Qty)
	}

	if cur != nil && quant.SamePerpPrice(cur.order.TriggerPx, px) && quant.SameSize(cur.order.Size, size) {
		logger.Debugf("[reconcile %s] %s unchanged at %.6f x %.8f", coin, kind, px, size)
		return nil
	}

	if cur != nil {
		if err := r.gw.CancelOrder(ctx, coin, cur.order.OID); err != nil {
			return fmt.Errorf("reconcile %s: cancel stale %s order %d: %w", coin, kind, cur.order.OID, err)
		}
		logger.Infof("[reconcile %s] cancelled stale %s order %d (%.6f x %.8f)",
			coin, kind, cur.order.OID, cur.order.TriggerPx, cur.order.Size)
	}

	order := exchange.OrderRequest{
		Coin: coin, IsBuy: pos.Side == SideShort, Size: size, LimitPx: px, ReduceOnly: true,
		Cloid: newCloid(),
		Type: exchange.OrderType{Trigger: &exchange.TriggerOrderType{
			TriggerPx: px, IsMarket: true, TpSl: tpsl,
		}},
	}
	resp, err := r.gw.PlaceOrders(ctx, []exchange.OrderRequest{order}, exchange.GroupingPositionTpsl)
	if err != nil {
		return fmt.Errorf("reconcile %s: place %s: %w", coin, kind, err)
	}
	if !resp.OK() {
		return fmt.Errorf("reconcile %s: place %s: exchange status %q", coin, kind, respStatus(resp))
	}
	for _, st := range resp.Statuses {
		if st.Error != "" {
			return fmt.Errorf("reconcile %s: %s rejected: %s", coin, kind, st.Error)
		}
	}

	if err := r.verifyPlaced(ctx, coin, px); err != nil {
		return fmt.Errorf("reconcile %s: verify %s placement: %w", coin, kind, err)
	}
	logger.Infof("[reconcile %s] %s set to %.6f x %.8f", coin, kind, px, size)
	return nil
}

func (r *Reconciler) verifyPlaced(ctx context.Context, coin string, triggerPx float64) error {
	orders, err := r.gw.FrontendOpenOrders(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if symbol.Matches(o.Coin, coin) && o.IsTrigger && quant.SamePerpPrice(o.TriggerPx, triggerPx) {
			return nil
		}
	}
	return fmt.Errorf("no resting trigger at %.6f after placement", triggerPx)
}

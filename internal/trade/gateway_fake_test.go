package trade

import (
	"context"
	"fmt"
	"time"

	"marlin/internal/gateway/exchange"
	"marlin/internal/market"
)

// scriptGateway is a hand mock of the exchange gateway with recorded
// mutations and scriptable responses.
type scriptGateway struct {
	mids   map[string]float64
	book   *exchange.L2Book
	meta   []exchange.AssetMeta
	acct   *exchange.AccountSummary
	orders []exchange.OpenOrder

	placed         []placeCall
	cancelled      []int64
	cancelErr      error
	placeErr       error
	placeResponses []*exchange.OrderResponse
	onPlace        func(call placeCall)
	leverageCalls  []int
}

type placeCall struct {
	orders   []exchange.OrderRequest
	grouping exchange.Grouping
}

func (g *scriptGateway) Name() string { return "script" }

func (g *scriptGateway) AllMids(context.Context) (map[string]float64, error) {
	return g.mids, nil
}

func (g *scriptGateway) L2Book(context.Context, string) (*exchange.L2Book, error) {
	return g.book, nil
}

func (g *scriptGateway) Meta(context.Context) ([]exchange.AssetMeta, error) {
	return g.meta, nil
}

func (g *scriptGateway) MetaAndAssetCtxs(context.Context) ([]exchange.AssetMeta, []exchange.AssetCtx, error) {
	return g.meta, nil, nil
}

func (g *scriptGateway) ClearinghouseState(context.Context) (*exchange.AccountSummary, error) {
	return g.acct, nil
}

func (g *scriptGateway) OpenOrders(context.Context) ([]exchange.OpenOrder, error) {
	return g.orders, nil
}

func (g *scriptGateway) FrontendOpenOrders(context.Context) ([]exchange.OpenOrder, error) {
	return g.orders, nil
}

func (g *scriptGateway) PlaceOrders(_ context.Context, orders []exchange.OrderRequest, grouping exchange.Grouping) (*exchange.OrderResponse, error) {
	call := placeCall{orders: orders, grouping: grouping}
	g.placed = append(g.placed, call)
	if g.placeErr != nil {
		return nil, g.placeErr
	}
	if g.onPlace != nil {
		g.onPlace(call)
	}
	if len(g.placeResponses) > 0 {
		resp := g.placeResponses[0]
		g.placeResponses = g.placeResponses[1:]
		return resp, nil
	}
	statuses := make([]exchange.OrderStatus, len(orders))
	for i := range statuses {
		statuses[i] = exchange.OrderStatus{Resting: &exchange.RestingStatus{OID: int64(9000 + i)}}
	}
	return &exchange.OrderResponse{Status: exchange.StatusOK, Statuses: statuses}, nil
}

func (g *scriptGateway) CancelOrder(_ context.Context, _ string, oid int64) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, oid)
	kept := g.orders[:0]
	for _, o := range g.orders {
		if o.OID != oid {
			kept = append(kept, o)
		}
	}
	g.orders = kept
	return nil
}

func (g *scriptGateway) CancelOrderByCloid(context.Context, string, string) error { return nil }

func (g *scriptGateway) UpdateLeverage(_ context.Context, _ string, _ bool, leverage int) error {
	g.leverageCalls = append(g.leverageCalls, leverage)
	return nil
}

func ethGateway() *scriptGateway {
	return &scriptGateway{
		mids: map[string]float64{"ETH": 3000},
		meta: []exchange.AssetMeta{{Coin: "ETH", SzDecimals: 4}},
		book: &exchange.L2Book{
			Bids: []exchange.Level{{Px: 2999.5, Size: 5}},
			Asks: []exchange.Level{{Px: 3000.5, Size: 5}},
		},
		acct: &exchange.AccountSummary{AccountValue: 1000},
	}
}

func marketFor(g *scriptGateway) *market.Service {
	return market.NewService(g, time.Hour)
}

func filledResp(oid int64, size, px float64) *exchange.OrderResponse {
	return &exchange.OrderResponse{Status: exchange.StatusOK, Statuses: []exchange.OrderStatus{
		{Filled: &exchange.FilledStatus{OID: oid, TotalSize: size, AvgPx: px}},
	}}
}

func errResp(msg string) *exchange.OrderResponse {
	return &exchange.OrderResponse{Status: exchange.StatusOK, Statuses: []exchange.OrderStatus{
		{Error: msg},
	}}
}

func restingResp(oids ...int64) *exchange.OrderResponse {
	r := &exchange.OrderResponse{Status: exchange.StatusOK}
	for _, oid := range oids {
		r.Statuses = append(r.Statuses, exchange.OrderStatus{Resting: &exchange.RestingStatus{OID: oid}})
	}
	return r
}

func (g *scriptGateway) lastCall() placeCall {
	if len(g.placed) == 0 {
		panic(fmt.Sprintf("no orders placed on %s", g.Name()))
	}
	return g.placed[len(g.placed)-1]
}

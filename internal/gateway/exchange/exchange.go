// Package exchange defines the gateway abstraction the execution engine
// talks to. The concrete Hyperliquid adapter lives in gateway/hyperliquid;
// everything above this interface is exchange-agnostic, and any API
// version skew is the adapter's internal concern.
package exchange

import "context"

type Gateway interface {
	Name() string

	// Market data.
	AllMids(ctx context.Context) (map[string]float64, error)
	L2Book(ctx context.Context, coin string) (*L2Book, error)
	Meta(ctx context.Context) ([]AssetMeta, error)
	MetaAndAssetCtxs(ctx context.Context) ([]AssetMeta, []AssetCtx, error)

	// Account state.
	ClearinghouseState(ctx context.Context) (*AccountSummary, error)
	OpenOrders(ctx context.Context) ([]OpenOrder, error)
	// FrontendOpenOrders is the enriched view carrying trigger and
	// reduce-only flags; OpenOrders is the raw view.
	FrontendOpenOrders(ctx context.Context) ([]OpenOrder, error)

	// Order mutation.
	PlaceOrders(ctx context.Context, orders []OrderRequest, grouping Grouping) (*OrderResponse, error)
	CancelOrder(ctx context.Context, coin string, oid int64) error
	CancelOrderByCloid(ctx context.Context, coin, cloid string) error
	UpdateLeverage(ctx context.Context, coin string, cross bool, leverage int) error
}

package hyperliquid

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"marlin/internal/gateway/exchange"
)

// AllMids returns the exchange's mid price map, keyed by coin.
func (c *Client) AllMids(ctx context.Context) (map[string]float64, error) {
	body, err := c.info(ctx, map[string]any{"type": "allMids"})
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("allMids: unexpected payload %s", truncate(body, 120))
	}
	mids := make(map[string]float64)
	root.ForEach(func(key, value gjson.Result) bool {
		mids[key.String()] = value.Float()
		return true
	})
	return mids, nil
}

// L2Book returns the order book for one coin.
func (c *Client) L2Book(ctx context.Context, coin string) (*exchange.L2Book, error) {
	body, err := c.info(ctx, map[string]any{"type": "l2Book", "coin": coin})
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)
	levels := root.Get("levels")
	if !levels.IsArray() || len(levels.Array()) < 2 {
		return nil, fmt.Errorf("l2Book %s: unexpected payload %s", coin, truncate(body, 120))
	}
	book := &exchange.L2Book{
		Coin: root.Get("coin").String(),
		Time: root.Get("time").Int(),
	}
	sides := levels.Array()
	book.Bids = parseLevels(sides[0])
	book.Asks = parseLevels(sides[1])
	return book, nil
}

func parseLevels(side gjson.Result) []exchange.Level {
	var out []exchange.Level
	side.ForEach(func(_, lvl gjson.Result) bool {
		out = append(out, exchange.Level{
			Px:   lvl.Get("px").Float(),
			Size: lvl.Get("sz").Float(),
			N:    int(lvl.Get("n").Int()),
		})
		return true
	})
	return out
}

// Meta returns the perp universe and refreshes the coin-to-asset-index
// mapping used by exchange actions.
func (c *Client) Meta(ctx context.Context) ([]exchange.AssetMeta, error) {
	body, err := c.info(ctx, map[string]any{"type": "meta"})
	if err != nil {
		return nil, err
	}
	return c.parseUniverse(gjson.GetBytes(body, "universe"))
}

func (c *Client) parseUniverse(universe gjson.Result) ([]exchange.AssetMeta, error) {
	if !universe.IsArray() {
		return nil, fmt.Errorf("meta: missing universe")
	}
	var metas []exchange.AssetMeta
	index := make(map[string]int)
	universe.ForEach(func(_, u gjson.Result) bool {
		coin := u.Get("name").String()
		index[coin] = len(metas)
		metas = append(metas, exchange.AssetMeta{
			Coin:        coin,
			SzDecimals:  int(u.Get("szDecimals").Int()),
			MaxLeverage: int(u.Get("maxLeverage").Int()),
		})
		return true
	})
	c.mu.Lock()
	c.assets = index
	c.mu.Unlock()
	return metas, nil
}

// MetaAndAssetCtxs returns the universe zipped with per-asset market
// context (mark, funding, open interest).
func (c *Client) MetaAndAssetCtxs(ctx context.Context) ([]exchange.AssetMeta, []exchange.AssetCtx, error) {
	body, err := c.info(ctx, map[string]any{"type": "metaAndAssetCtxs"})
	if err != nil {
		return nil, nil, err
	}
	root := gjson.ParseBytes(body)
	parts := root.Array()
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("metaAndAssetCtxs: unexpected payload %s", truncate(body, 120))
	}
	metas, err := c.parseUniverse(parts[0].Get("universe"))
	if err != nil {
		return nil, nil, err
	}
	var ctxs []exchange.AssetCtx
	parts[1].ForEach(func(_, a gjson.Result) bool {
		ac := exchange.AssetCtx{
			MarkPx:       a.Get("markPx").Float(),
			Funding:      a.Get("funding").Float(),
			OpenInterest: a.Get("openInterest").Float(),
		}
		if i := len(ctxs); i < len(metas) {
			ac.Coin = metas[i].Coin
		}
		ctxs = append(ctxs, ac)
		return true
	})
	return metas, ctxs, nil
}

// ClearinghouseState returns the margin summary and open positions for
// the bound account.
func (c *Client) ClearinghouseState(ctx context.Context) (*exchange.AccountSummary, error) {
	body, err := c.info(ctx, map[string]any{"type": "clearinghouseState", "user": c.address})
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)
	ms := root.Get("marginSummary")
	sum := &exchange.AccountSummary{
		AccountValue:    ms.Get("accountValue").Float(),
		TotalMarginUsed: ms.Get("totalMarginUsed").Float(),
		TotalNtlPos:     ms.Get("totalNtlPos").Float(),
		TotalRawUsd:     ms.Get("totalRawUsd").Float(),
	}
	root.Get("assetPositions").ForEach(func(_, ap gjson.Result) bool {
		p := ap.Get("position")
		size := p.Get("szi").Float()
		if size == 0 {
			return true
		}
		sum.Positions = append(sum.Positions, exchange.Position{
			Coin:          p.Get("coin").String(),
			Size:          size,
			EntryPx:       p.Get("entryPx").Float(),
			Leverage:      p.Get("leverage.value").Float(),
			LiquidationPx: p.Get("liquidationPx").Float(),
			UnrealizedPnl: p.Get("unrealizedPnl").Float(),
		})
		return true
	})
	return sum, nil
}

// OpenOrders returns the raw resting-order view.
func (c *Client) OpenOrders(ctx context.Context) ([]exchange.OpenOrder, error) {
	body, err := c.info(ctx, map[string]any{"type": "openOrders", "user": c.address})
	if err != nil {
		return nil, err
	}
	return parseOrders(gjson.ParseBytes(body), false), nil
}

// FrontendOpenOrders returns the enriched view carrying trigger and
// reduce-only flags.
func (c *Client) FrontendOpenOrders(ctx context.Context) ([]exchange.OpenOrder, error) {
	body, err := c.info(ctx, map[string]any{"type": "frontendOpenOrders", "user": c.address})
	if err != nil {
		return nil, err
	}
	return parseOrders(gjson.ParseBytes(body), true), nil
}

func parseOrders(root gjson.Result, frontend bool) []exchange.OpenOrder {
	var out []exchange.OpenOrder
	root.ForEach(func(_, o gjson.Result) bool {
		ord := exchange.OpenOrder{
			Coin:    o.Get("coin").String(),
			OID:     o.Get("oid").Int(),
			Cloid:   o.Get("cloid").String(),
			IsBuy:   o.Get("side").String() == "B",
			LimitPx: o.Get("limitPx").Float(),
			Size:    o.Get("sz").Float(),
		}
		if frontend {
			ord.TriggerPx = o.Get("triggerPx").Float()
			ord.ReduceOnly = o.Get("reduceOnly").Bool()
			ord.IsTrigger = o.Get("isTrigger").Bool()
			ord.IsPositionTpsl = o.Get("isPositionTpsl").Bool()
		}
		out = append(out, ord)
		return true
	})
	return out
}

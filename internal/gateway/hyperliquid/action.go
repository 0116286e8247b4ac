package hyperliquid

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"marlin/internal/gateway/exchange"
	"marlin/internal/quant"
)

// Wire structs serialize identically under msgpack (for hashing) and JSON
// (for the request body). Field order must not change: the action hash is
// computed over the msgpack encoding in declaration order.

type orderAction struct {
	Type     string      `json:"type" msgpack:"type"`
	Orders   []wireOrder `json:"orders" msgpack:"orders"`
	Grouping string      `json:"grouping" msgpack:"grouping"`
}

type wireOrder struct {
	Asset      int           `json:"a" msgpack:"a"`
	IsBuy      bool          `json:"b" msgpack:"b"`
	Price      string        `json:"p" msgpack:"p"`
	Size       string        `json:"s" msgpack:"s"`
	ReduceOnly bool          `json:"r" msgpack:"r"`
	Type       wireOrderType `json:"t" msgpack:"t"`
	Cloid      string        `json:"c,omitempty" msgpack:"c,omitempty"`
}

type wireOrderType struct {
	Limit   *wireLimit   `json:"limit,omitempty" msgpack:"limit,omitempty"`
	Trigger *wireTrigger `json:"trigger,omitempty" msgpack:"trigger,omitempty"`
}

type wireLimit struct {
	Tif string `json:"tif" msgpack:"tif"`
}

type wireTrigger struct {
	IsMarket  bool   `json:"isMarket" msgpack:"isMarket"`
	TriggerPx string `json:"triggerPx" msgpack:"triggerPx"`
	TpSl      string `json:"tpsl" msgpack:"tpsl"`
}

type cancelAction struct {
	Type    string       `json:"type" msgpack:"type"`
	Cancels []wireCancel `json:"cancels" msgpack:"cancels"`
}

type wireCancel struct {
	Asset int   `json:"a" msgpack:"a"`
	OID   int64 `json:"o" msgpack:"o"`
}

type cancelByCloidAction struct {
	Type    string            `json:"type" msgpack:"type"`
	Cancels []wireCloidCancel `json:"cancels" msgpack:"cancels"`
}

type wireCloidCancel struct {
	Asset int    `json:"asset" msgpack:"asset"`
	Cloid string `json:"cloid" msgpack:"cloid"`
}

type leverageAction struct {
	Type     string `json:"type" msgpack:"type"`
	Asset    int    `json:"asset" msgpack:"asset"`
	IsCross  bool   `json:"isCross" msgpack:"isCross"`
	Leverage int    `json:"leverage" msgpack:"leverage"`
}

type exchangeRequest struct {
	Action       any       `json:"action"`
	Nonce        uint64    `json:"nonce"`
	Signature    signature `json:"signature"`
	VaultAddress *string   `json:"vaultAddress"`
}

// submit signs and posts one action to /exchange, returning the raw body.
func (c *Client) submit(ctx context.Context, action any) ([]byte, error) {
	if c.key == nil {
		return nil, fmt.Errorf("no signing key configured")
	}
	nonce := uint64(time.Now().UnixMilli())
	sig, err := signAction(c.key, action, nonce, c.testnet)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "/exchange", exchangeRequest{
		Action:    action,
		Nonce:     nonce,
		Signature: sig,
	})
}

// PlaceOrders submits a batch of orders under one grouping.
func (c *Client) PlaceOrders(ctx context.Context, orders []exchange.OrderRequest, grouping exchange.Grouping) (*exchange.OrderResponse, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("empty order batch")
	}
	wire := make([]wireOrder, 0, len(orders))
	for _, o := range orders {
		w, err := c.toWire(ctx, o)
		if err != nil {
			return nil, err
		}
		wire = append(wire, w)
	}
	body, err := c.submit(ctx, orderAction{Type: "order", Orders: wire, Grouping: string(grouping)})
	if err != nil {
		return nil, err
	}
	return parseOrderResponse(body)
}

func (c *Client) toWire(ctx context.Context, o exchange.OrderRequest) (wireOrder, error) {
	idx, err := c.assetIndex(ctx, o.Coin)
	if err != nil {
		return wireOrder{}, err
	}
	px, err := quant.FormatWire(o.LimitPx)
	if err != nil {
		return wireOrder{}, fmt.Errorf("order %s: bad price: %w", o.Coin, err)
	}
	sz, err := quant.FormatWire(o.Size)
	if err != nil {
		return wireOrder{}, fmt.Errorf("order %s: bad size: %w", o.Coin, err)
	}

	w := wireOrder{
		Asset:      idx,
		IsBuy:      o.IsBuy,
		Price:      px,
		Size:       sz,
		ReduceOnly: o.ReduceOnly,
		Cloid:      o.Cloid,
	}
	switch {
	case o.Type.Limit != nil:
		w.Type.Limit = &wireLimit{Tif: string(o.Type.Limit.Tif)}
	case o.Type.Trigger != nil:
		tpx, err := quant.FormatWire(o.Type.Trigger.TriggerPx)
		if err != nil {
			return wireOrder{}, fmt.Errorf("order %s: bad trigger price: %w", o.Coin, err)
		}
		w.Type.Trigger = &wireTrigger{
			IsMarket:  o.Type.Trigger.IsMarket,
			TriggerPx: tpx,
			TpSl:      string(o.Type.Trigger.TpSl),
		}
	default:
		return wireOrder{}, fmt.Errorf("order %s: no order type", o.Coin)
	}
	return w, nil
}

func parseOrderResponse(body []byte) (*exchange.OrderResponse, error) {
	root := gjson.ParseBytes(body)
	resp := &exchange.OrderResponse{Status: root.Get("status").String()}
	root.Get("response.data.statuses").ForEach(func(_, st gjson.Result) bool {
		var s exchange.OrderStatus
		switch {
		case st.Get("error").Exists():
			s.Error = st.Get("error").String()
		case st.Get("filled").Exists():
			f := st.Get("filled")
			s.Filled = &exchange.FilledStatus{
				OID:       f.Get("oid").Int(),
				TotalSize: f.Get("totalSz").Float(),
				AvgPx:     f.Get("avgPx").Float(),
			}
		case st.Get("resting").Exists():
			s.Resting = &exchange.RestingStatus{OID: st.Get("resting.oid").Int()}
		case st.Get("waitingForTrigger").Exists():
			s.WaitingForTrigger = true
		case st.Type == gjson.String:
			// Cancel-style responses report plain "success" strings.
			if st.String() != "success" {
				s.Error = st.String()
			}
		}
		resp.Statuses = append(resp.Statuses, s)
		return true
	})
	return resp, nil
}

// CancelOrder cancels one resting order by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, coin string, oid int64) error {
	idx, err := c.assetIndex(ctx, coin)
	if err != nil {
		return err
	}
	body, err := c.submit(ctx, cancelAction{
		Type:    "cancel",
		Cancels: []wireCancel{{Asset: idx, OID: oid}},
	})
	if err != nil {
		return err
	}
	return checkActionResponse(body, fmt.Sprintf("cancel %s/%d", coin, oid))
}

// CancelOrderByCloid cancels by client order id.
func (c *Client) CancelOrderByCloid(ctx context.Context, coin, cloid string) error {
	idx, err := c.assetIndex(ctx, coin)
	if err != nil {
		return err
	}
	body, err := c.submit(ctx, cancelByCloidAction{
		Type:    "cancelByCloid",
		Cancels: []wireCloidCancel{{Asset: idx, Cloid: cloid}},
	})
	if err != nil {
		return err
	}
	return checkActionResponse(body, fmt.Sprintf("cancelByCloid %s/%s", coin, cloid))
}

// UpdateLeverage sets the leverage and margin mode for one instrument.
func (c *Client) UpdateLeverage(ctx context.Context, coin string, cross bool, leverage int) error {
	idx, err := c.assetIndex(ctx, coin)
	if err != nil {
		return err
	}
	body, err := c.submit(ctx, leverageAction{
		Type:     "updateLeverage",
		Asset:    idx,
		IsCross:  cross,
		Leverage: leverage,
	})
	if err != nil {
		return err
	}
	return checkActionResponse(body, fmt.Sprintf("updateLeverage %s", coin))
}

func checkActionResponse(body []byte, op string) error {
	resp, err := parseOrderResponse(body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%s: exchange status %q", op, resp.Status)
	}
	for _, st := range resp.Statuses {
		if st.Error != "" {
			return fmt.Errorf("%s: %s", op, st.Error)
		}
	}
	return nil
}

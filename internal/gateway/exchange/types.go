package exchange

// Tif is the time-in-force of a limit order.
type Tif string

const (
	TifGtc Tif = "Gtc"
	TifIoc Tif = "Ioc"
	TifAlo Tif = "Alo"
)

// TpSl marks a trigger order as take-profit or stop-loss.
type TpSl string

const (
	TriggerTp TpSl = "tp"
	TriggerSl TpSl = "sl"
)

// Grouping controls how the exchange ties a batch of orders together.
type Grouping string

const (
	GroupingNone         Grouping = "na"
	GroupingNormalTpsl   Grouping = "normalTpsl"
	GroupingPositionTpsl Grouping = "positionTpsl"
)

type LimitOrderType struct {
	Tif Tif
}

type TriggerOrderType struct {
	TriggerPx float64
	IsMarket  bool
	TpSl      TpSl
}

// OrderType is a tagged union: exactly one of Limit or Trigger is set.
type OrderType struct {
	Limit   *LimitOrderType
	Trigger *TriggerOrderType
}

type OrderRequest struct {
	Coin       string
	IsBuy      bool
	Size       float64
	LimitPx    float64
	ReduceOnly bool
	Cloid      string // optional client order id
	Type       OrderType
}

// FilledStatus reports an immediate (possibly partial) fill.
type FilledStatus struct {
	OID       int64
	TotalSize float64
	AvgPx     float64
}

type RestingStatus struct {
	OID int64
}

// OrderStatus is the per-order outcome inside a batch response. Exactly
// one of the fields is meaningful.
type OrderStatus struct {
	Error             string
	Filled            *FilledStatus
	Resting           *RestingStatus
	WaitingForTrigger bool
}

const StatusOK = "ok"

// OrderResponse is the top-level result of a batched submission.
type OrderResponse struct {
	Status   string
	Statuses []OrderStatus
}

func (r *OrderResponse) OK() bool {
	return r != nil && r.Status == StatusOK
}

// OpenOrder is a resting order. Trigger and reduce-only flags are only
// populated by the frontend-enriched query.
type OpenOrder struct {
	Coin           string
	OID            int64
	Cloid          string
	IsBuy          bool
	LimitPx        float64
	TriggerPx      float64
	Size           float64
	ReduceOnly     bool
	IsTrigger      bool
	IsPositionTpsl bool
}

// Position is the exchange's view of one open perp position. Size is
// signed: positive long, negative short.
type Position struct {
	Coin          string
	Size          float64
	EntryPx       float64
	Leverage      float64
	LiquidationPx float64
	UnrealizedPnl float64
}

// AccountSummary is a read-only margin snapshot taken once per cycle.
type AccountSummary struct {
	AccountValue    float64
	TotalMarginUsed float64
	TotalNtlPos     float64
	TotalRawUsd     float64
	Positions       []Position
}

func (a *AccountSummary) FreeMargin() float64 {
	if a == nil {
		return 0
	}
	return a.AccountValue - a.TotalMarginUsed
}

// AssetMeta is per-instrument metadata from the exchange universe.
type AssetMeta struct {
	Coin        string
	SzDecimals  int
	MaxLeverage int
}

// AssetCtx carries the perp market context for one asset.
type AssetCtx struct {
	Coin         string
	MarkPx       float64
	Funding      float64
	OpenInterest float64
}

type Level struct {
	Px   float64
	Size float64
	N    int
}

type L2Book struct {
	Coin string
	Bids []Level
	Asks []Level
	Time int64
}

package trade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marlin/internal/gateway/exchange"
)

func protectiveOrder(oid int64, triggerPx, size float64) exchange.OpenOrder {
	return exchange.OpenOrder{
		Coin: "ETH", OID: oid, TriggerPx: triggerPx, Size: size,
		ReduceOnly: true, IsTrigger: true,
	}
}

func longPos() *OpenPosition {
	return &OpenPosition{Side: SideLong, Qty: 0.5, EntryPx: 3000}
}

func ptr(v float64) *float64 { return &v }

func TestReconcileNoOpWhenUnchanged(t *testing.T) {
	gw := ethGateway()
	gw.orders = []exchange.OpenOrder{
		protectiveOrder(1, 3100, 0.5),
		protectiveOrder(2, 2900, 0.5),
	}
	r := NewReconciler(gw, marketFor(gw))

	err := r.Reconcile(context.Background(), "ETH-PERP", longPos(), ptr(3100), ptr(2900))
	require.NoError(t, err)
	assert.Empty(t, gw.cancelled)
	assert.Empty(t, gw.placed)
}

func TestReconcileReplacesChangedTarget(t *testing.T) {
	gw := ethGateway()
	gw.orders = []exchange.OpenOrder{
		protectiveOrder(1, 3100, 0.5),
		protectiveOrder(2, 2900, 0.5),
	}
	gw.onPlace = func(call placeCall) {
		// Mirror the replacement into resting state so verification sees it.
		o := call.orders[0]
		gw.orders = append(gw.orders, protectiveOrder(99, o.Type.Trigger.TriggerPx, o.Size))
	}
	r := NewReconciler(gw, marketFor(gw))

	err := r.Reconcile(context.Background(), "ETH-PERP", longPos(), ptr(3150), ptr(2900))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, gw.cancelled, "only the drifted TP is cancelled")
	require.Len(t, gw.placed, 1)
	o := gw.placed[0].orders[0]
	assert.True(t, o.ReduceOnly)
	assert.False(t, o.IsBuy)
	assert.Equal(t, 3150.0, o.Type.Trigger.TriggerPx)
	assert.Equal(t, exchange.TriggerTp, o.Type.Trigger.TpSl)
}

func TestReconcileReplacesOnSizeDrift(t *testing.T) {
	gw := ethGateway()
	gw.orders = []exchange.OpenOrder{
		protectiveOrder(1, 3100, 0.2), // stale size from a prior partial fill
	}
	gw.onPlace = func(call placeCall) {
		o := call.orders[0]
		gw.orders = append(gw.orders, protectiveOrder(99, o.Type.Trigger.TriggerPx, o.Size))
	}
	r := NewReconciler(gw, marketFor(gw))

	err := r.Reconcile(context.Background(), "ETH-PERP", longPos(), ptr(3100), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, gw.cancelled)
	require.Len(t, gw.placed, 1)
	assert.Equal(t, 0.5, gw.placed[0].orders[0].Size)
}

func TestReconcileIgnoresWrongSideTargets(t *testing.T) {
	gw := ethGateway()
	gw.orders = []exchange.OpenOrder{
		protectiveOrder(1, 3100, 0.5),
		protectiveOrder(2, 2900, 0.5),
	}
	r := NewReconciler(gw, marketFor(gw))

	// For a long at mark 3000, a TP below mark and an SL above are both
	// unusable; existing protection stays untouched.
	err := r.Reconcile(context.Background(), "ETH-PERP", longPos(), ptr(2800), ptr(3200))
	require.NoError(t, err)
	assert.Empty(t, gw.cancelled)
	assert.Empty(t, gw.placed)
}

func TestReconcileMatchesClosestSize(t *testing.T) {
	gw := ethGateway()
	gw.orders = []exchange.OpenOrder{
		protectiveOrder(1, 3100, 0.01), // leftover dust from an old cycle
		protectiveOrder(2, 3105, 0.5),
	}
	r := NewReconciler(gw, marketFor(gw))

	// Desired matches the well-sized order, not the dust: no churn.
	err := r.Reconcile(context.Background(), "ETH-PERP", longPos(), ptr(3105), nil)
	require.NoError(t, err)
	assert.Empty(t, gw.cancelled)
	assert.Empty(t, gw.placed)
}

func TestReconcileCancelFailureAborts(t *testing.T) {
	gw := ethGateway()
	gw.orders = []exchange.OpenOrder{protectiveOrder(1, 3100, 0.5)}
	gw.cancelErr = assert.AnError
	r := NewReconciler(gw, marketFor(gw))

	err := r.Reconcile(context.Background(), "ETH-PERP", longPos(), ptr(3150), nil)
	require.Error(t, err)
	assert.Empty(t, gw.placed, "no replacement after an unconfirmed cancel")
}

func TestReconcilePlacementVerified(t *testing.T) {
	gw := ethGateway()
	gw.orders = []exchange.OpenOrder{protectiveOrder(1, 3100, 0.5)}
	// onPlace not set: the replacement never shows up in resting orders.
	r := NewReconciler(gw, marketFor(gw))

	err := r.Reconcile(context.Background(), "ETH-PERP", longPos(), ptr(3150), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify")
}

func TestReconcileShortPosition(t *testing.T) {
	gw := ethGateway()
	pos := &OpenPosition{Side: SideShort, Qty: 0.5, EntryPx: 3050}
	gw.orders = nil
	gw.onPlace = func(call placeCall) {
		o := call.orders[0]
		gw.orders = append(gw.orders, protectiveOrder(99, o.Type.Trigger.TriggerPx, o.Size))
	}
	r := NewReconciler(gw, marketFor(gw))

	// Short at mark 3000: TP below, SL above.
	err := r.Reconcile(context.Background(), "ETH-PERP", pos, ptr(2900), ptr(3100))
	require.NoError(t, err)
	require.Len(t, gw.placed, 2)
	for _, call := range gw.placed {
		assert.True(t, call.orders[0].IsBuy, "short exits are buys")
	}
	assert.Equal(t, exchange.TriggerTp, gw.placed[0].orders[0].Type.Trigger.TpSl)
	assert.Equal(t, exchange.TriggerSl, gw.placed[1].orders[0].Type.Trigger.TpSl)
}

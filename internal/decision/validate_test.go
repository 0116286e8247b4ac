package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bounds = Bounds{LeverageMax: 5, MinOpenConfidence: 0.6}

func TestCheckPayload(t *testing.T) {
	t.Run("accepts well-formed payload", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "buy", "profit_target": 3925, "stop_loss": 3750,
			"leverage": 4, "risk_pct": 0.05, "confidence": 0.8,
			"invalidation_condition": "close below 3700"}}`)
		assert.NoError(t, CheckPayload(raw))
	})

	t.Run("rejects non-object payloads", func(t *testing.T) {
		assert.Error(t, CheckPayload([]byte(`[]`)))
		assert.Error(t, CheckPayload([]byte(`"buy"`)))
		assert.Error(t, CheckPayload([]byte(`{}`)))
		assert.Error(t, CheckPayload([]byte(`not json`)))
	})

	t.Run("one coin's stray field does not sink the others", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "buy", "confidence": 0.8},
			"BTC": {"signal": "sell", "confidence": 0.7, "reasoning": "range break"}}`)
		require.NoError(t, CheckPayload(raw))

		d := ForCoin(raw, "ETH-PERP", bounds)
		require.NotNil(t, d)
		assert.Equal(t, SignalBuy, d.Signal)
		d = ForCoin(raw, "BTC-PERP", bounds)
		require.NotNil(t, d)
		assert.Equal(t, SignalSell, d.Signal)
	})

	t.Run("misspelled field reads as absent", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "buy", "stoploss": 3750}}`)
		require.NoError(t, CheckPayload(raw))
		d := ForCoin(raw, "ETH-PERP", bounds)
		require.NotNil(t, d)
		assert.Nil(t, d.StopLoss)
	})

	t.Run("requires signal", func(t *testing.T) {
		raw := []byte(`{"ETH": {"confidence": 0.9}}`)
		assert.Error(t, CheckPayload(raw))
	})
}

func TestForCoin(t *testing.T) {
	t.Run("missing coin yields nil", func(t *testing.T) {
		raw := []byte(`{"BTC": {"signal": "hold"}}`)
		assert.Nil(t, ForCoin(raw, "ETH-PERP", bounds))
	})

	t.Run("bad signal invalidates the decision", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "short"}}`)
		assert.Nil(t, ForCoin(raw, "ETH-PERP", bounds))
	})

	t.Run("signal is case-insensitive", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "BUY", "confidence": 0.9}}`)
		d := ForCoin(raw, "ETH-PERP", bounds)
		require.NotNil(t, d)
		assert.Equal(t, SignalBuy, d.Signal)
	})

	t.Run("hold passes numerics through unchecked", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "hold", "leverage": 99, "risk_pct": 4}}`)
		d := ForCoin(raw, "ETH-PERP", bounds)
		require.NotNil(t, d)
		assert.True(t, d.IsHold())
		require.NotNil(t, d.Leverage)
		assert.Equal(t, 99.0, *d.Leverage)
	})

	t.Run("out-of-range field is dropped, decision survives", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "buy", "leverage": 25, "risk_pct": 0.05,
			"profit_target": 3925, "stop_loss": 3750, "confidence": 0.8}}`)
		d := ForCoin(raw, "ETH-PERP", bounds)
		require.NotNil(t, d)
		assert.Nil(t, d.Leverage, "leverage 25 > 2x configured max must be dropped")
		require.NotNil(t, d.RiskPct)
		assert.Equal(t, 0.05, *d.RiskPct)
		require.NotNil(t, d.ProfitTarget)
		assert.Equal(t, 3925.0, *d.ProfitTarget)
	})

	t.Run("confidence outside [0,1] is dropped and reads as zero", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "sell", "confidence": 1.7}}`)
		d := ForCoin(raw, "ETH-PERP", bounds)
		require.NotNil(t, d)
		assert.Nil(t, d.Confidence)
		assert.Equal(t, 0.0, d.Conf())
	})

	t.Run("full decision round-trips", func(t *testing.T) {
		raw := []byte(`{"ETH": {"signal": "sell", "quantity": 0.004,
			"profit_target": 3725, "stop_loss": 4130, "leverage": 2,
			"risk_usd": 11.99, "risk_pct": 0.05, "confidence": 0.8,
			"invalidation_condition": "break above 4150"}}`)
		d := ForCoin(raw, "ETH-PERP", bounds)
		require.NotNil(t, d)
		assert.Equal(t, "ETH", d.Coin)
		assert.Equal(t, SignalSell, d.Signal)
		assert.False(t, d.WantsLong())
		assert.Equal(t, 0.004, *d.Quantity)
		assert.Equal(t, 3725.0, *d.ProfitTarget)
		assert.Equal(t, 4130.0, *d.StopLoss)
		assert.Equal(t, 2.0, *d.Leverage)
		assert.Equal(t, 0.8, d.Conf())
		assert.Equal(t, "break above 4150", d.Invalidation)
	})
}

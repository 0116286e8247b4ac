package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marlin.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
symbols = ["ETH-PERP", "BTC-PERP"]

[exchange]
private_key = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
testnet = true
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"ETH-PERP", "BTC-PERP"}, cfg.Symbols)
	assert.True(t, cfg.Exchange.Testnet)
	assert.Equal(t, "flip_if_confident", cfg.Policy.SignalPolicy)
	assert.Equal(t, 0.8, cfg.Policy.FlipConfidence)
	assert.Equal(t, 0.6, cfg.Policy.MinOpenConfidence)
	assert.Equal(t, "fixed", cfg.Risk.SizingMode)
	assert.Equal(t, 10.0, cfg.Risk.MinOrderUSD)
	assert.Equal(t, 15.0, cfg.Risk.PositionUSD)
	assert.Equal(t, 5.0, cfg.Risk.LeverageMax)
	assert.Equal(t, "isolated", cfg.Risk.LeverageMode)
	assert.Equal(t, 0.8, cfg.Execution.DefaultTpPct)
	assert.Equal(t, 0.4, cfg.Execution.DefaultSlPct)
	assert.Equal(t, 0.05, cfg.Execution.EntrySlippagePct)
	assert.Equal(t, 20.0, cfg.Execution.MaxEntrySlippageBps)
	assert.Equal(t, 1, cfg.Execution.EntryEpsTicks)
	assert.Equal(t, 300.0, cfg.Execution.CloseSlippageBps)
	assert.Equal(t, 2*time.Minute, cfg.Schedule.Interval)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
[policy]
signal_policy = "update_tp_sl"
flip_confidence = 0.9

[risk]
sizing_mode = "risk_pct"
risk_pct_default = 0.03

[schedule]
interval = "30s"
run_immediately = true
`))
	require.NoError(t, err)
	assert.Equal(t, "update_tp_sl", cfg.Policy.SignalPolicy)
	assert.Equal(t, 0.9, cfg.Policy.FlipConfidence)
	assert.Equal(t, "risk_pct", cfg.Risk.SizingMode)
	assert.Equal(t, 0.03, cfg.Risk.RiskPctDefault)
	assert.Equal(t, 30*time.Second, cfg.Schedule.Interval)
	assert.True(t, cfg.Schedule.RunImmediately)
	assert.Equal(t, 0.6, cfg.Policy.MinOpenConfidence, "untouched keys keep defaults")
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad policy", minimalConfig + "\n[policy]\nsignal_policy = \"yolo\"\n"},
		{"bad sizing mode", minimalConfig + "\n[risk]\nsizing_mode = \"martingale\"\n"},
		{"bad leverage mode", minimalConfig + "\n[risk]\nleverage_mode = \"double\"\n"},
		{"leverage below one", minimalConfig + "\n[risk]\nleverage_max = 0.5\n"},
		{"inverted risk band", minimalConfig + "\n[risk]\nrisk_pct_min = 0.5\nrisk_pct_max = 0.1\n"},
		{"confidence out of range", minimalConfig + "\n[policy]\nflip_confidence = 1.5\n"},
		{"negative entry slippage", minimalConfig + "\n[execution]\nentry_slippage_pct = -0.1\n"},
		{"zero close slippage", minimalConfig + "\n[execution]\nclose_slippage_bps = 0.0\n"},
		{"interval too short", minimalConfig + "\n[schedule]\ninterval = \"100ms\"\n"},
		{"missing key", "symbols = [\"ETH-PERP\"]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	updates := make(chan *Config, 1)
	require.NoError(t, Watch(t.Context(), path, func(c *Config) { updates <- c }))

	time.Sleep(100 * time.Millisecond) // let the watcher arm
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig+"\n[policy]\nsignal_policy = \"ignore\"\n"), 0o600))

	select {
	case cfg := <-updates:
		assert.Equal(t, "ignore", cfg.Policy.SignalPolicy)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatchSkipsInvalidEdit(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	updates := make(chan *Config, 1)
	require.NoError(t, Watch(t.Context(), path, func(c *Config) { updates <- c }))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("symbols = []\n"), 0o600))

	select {
	case <-updates:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(1500 * time.Millisecond):
	}
}

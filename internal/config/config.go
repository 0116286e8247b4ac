// Package config loads, validates and hot-reloads process configuration
// from a TOML file with environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the file at path, applies defaults and MARLIN_* environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	v.SetEnvPrefix("MARLIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbols", []string{"ETH-PERP"})

	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.testnet", false)

	v.SetDefault("policy.signal_policy", "flip_if_confident")
	v.SetDefault("policy.flip_confidence", 0.8)
	v.SetDefault("policy.min_open_confidence", 0.6)

	v.SetDefault("risk.sizing_mode", "fixed")
	v.SetDefault("risk.min_order_usd", 10.0)
	v.SetDefault("risk.position_usd", 15.0)
	v.SetDefault("risk.accept_model_sizing", false)
	v.SetDefault("risk.risk_pct_default", 0.05)
	v.SetDefault("risk.risk_pct_min", 0.01)
	v.SetDefault("risk.risk_pct_max", 0.06)
	v.SetDefault("risk.leverage_max", 5.0)
	v.SetDefault("risk.leverage_mode", "isolated")
	v.SetDefault("risk.sync_leverage", true)

	v.SetDefault("execution.default_tp_pct", 0.8)
	v.SetDefault("execution.default_sl_pct", 0.4)
	v.SetDefault("execution.entry_slippage_pct", 0.05)
	v.SetDefault("execution.max_entry_slippage_bps", 20.0)
	v.SetDefault("execution.entry_eps_ticks", 1)
	v.SetDefault("execution.close_slippage_bps", 300.0)

	v.SetDefault("schedule.interval", "2m")
	v.SetDefault("schedule.run_immediately", false)

	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o")
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.timeout", "120s")

	v.SetDefault("store.path", "data/marlin.db")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", "info")
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: symbols must not be empty")
	}
	switch c.Policy.SignalPolicy {
	case "ignore", "update_tp_sl", "flip_if_confident", "flip_and_update":
	default:
		return fmt.Errorf("config: unknown signal_policy %q", c.Policy.SignalPolicy)
	}
	switch c.Risk.SizingMode {
	case "fixed", "risk_pct":
	default:
		return fmt.Errorf("config: unknown sizing_mode %q", c.Risk.SizingMode)
	}
	switch c.Risk.LeverageMode {
	case "isolated", "cross":
	default:
		return fmt.Errorf("config: unknown leverage_mode %q", c.Risk.LeverageMode)
	}
	if c.Risk.LeverageMax < 1 {
		return fmt.Errorf("config: leverage_max must be >= 1, got %v", c.Risk.LeverageMax)
	}
	if c.Risk.RiskPctMin < 0 || c.Risk.RiskPctMax > 1 || c.Risk.RiskPctMin > c.Risk.RiskPctMax {
		return fmt.Errorf("config: risk_pct bounds [%v, %v] invalid", c.Risk.RiskPctMin, c.Risk.RiskPctMax)
	}
	if c.Risk.MinOrderUSD <= 0 {
		return fmt.Errorf("config: min_order_usd must be positive")
	}
	if c.Policy.FlipConfidence < 0 || c.Policy.FlipConfidence > 1 ||
		c.Policy.MinOpenConfidence < 0 || c.Policy.MinOpenConfidence > 1 {
		return fmt.Errorf("config: confidence thresholds must be in [0, 1]")
	}
	if c.Execution.EntrySlippagePct < 0 {
		return fmt.Errorf("config: entry_slippage_pct must not be negative")
	}
	if c.Execution.CloseSlippageBps <= 0 {
		return fmt.Errorf("config: close_slippage_bps must be positive")
	}
	if c.Schedule.Interval < time.Second {
		return fmt.Errorf("config: schedule interval %s too short", c.Schedule.Interval)
	}
	if c.Exchange.PrivateKey == "" {
		return fmt.Errorf("config: exchange.private_key is required")
	}
	return nil
}

package config

import "time"

// Config is the full process configuration. Field tags follow the TOML
// key names; the loader decodes by tag so file and struct stay in sync.
type Config struct {
	Symbols   []string        `toml:"symbols"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Policy    PolicyConfig    `toml:"policy"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	AI        AIConfig        `toml:"ai"`
	Store     StoreConfig     `toml:"store"`
	Server    ServerConfig    `toml:"server"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Log       LogConfig       `toml:"log"`
}

type ExchangeConfig struct {
	BaseURL    string        `toml:"base_url"`
	PrivateKey string        `toml:"private_key"`
	Testnet    bool          `toml:"testnet"`
	Timeout    time.Duration `toml:"timeout"`
}

type PolicyConfig struct {
	SignalPolicy      string  `toml:"signal_policy"`
	FlipConfidence    float64 `toml:"flip_confidence"`
	MinOpenConfidence float64 `toml:"min_open_confidence"`
}

type RiskConfig struct {
	SizingMode        string  `toml:"sizing_mode"`
	MinOrderUSD       float64 `toml:"min_order_usd"`
	PositionUSD       float64 `toml:"position_usd"`
	AcceptModelSizing bool    `toml:"accept_model_sizing"`
	RiskPctDefault    float64 `toml:"risk_pct_default"`
	RiskPctMin        float64 `toml:"risk_pct_min"`
	RiskPctMax        float64 `toml:"risk_pct_max"`
	LeverageMax       float64 `toml:"leverage_max"`
	LeverageMode      string  `toml:"leverage_mode"`
	SyncLeverage      bool    `toml:"sync_leverage"`
}

type ExecutionConfig struct {
	DefaultTpPct        float64 `toml:"default_tp_pct"`
	DefaultSlPct        float64 `toml:"default_sl_pct"`
	EntrySlippagePct    float64 `toml:"entry_slippage_pct"`
	MaxEntrySlippageBps float64 `toml:"max_entry_slippage_bps"`
	EntryEpsTicks       int     `toml:"entry_eps_ticks"`
	CloseSlippageBps    float64 `toml:"close_slippage_bps"`
}

type ScheduleConfig struct {
	Interval       time.Duration `toml:"interval"`
	RunImmediately bool          `toml:"run_immediately"`
}

type AIConfig struct {
	BaseURL     string        `toml:"base_url"`
	APIKey      string        `toml:"api_key"`
	Model       string        `toml:"model"`
	Temperature float64       `toml:"temperature"`
	Timeout     time.Duration `toml:"timeout"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type TelegramConfig struct {
	Token  string `toml:"token"`
	ChatID string `toml:"chat_id"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

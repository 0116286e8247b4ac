// Package app wires the gateway, market data, decision source, engine and
// supporting services into the running process.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marlin/internal/ai"
	"marlin/internal/config"
	"marlin/internal/gateway/hyperliquid"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/notify"
	"marlin/internal/scheduler"
	"marlin/internal/sizing"
	"marlin/internal/store"
	"marlin/internal/trade"
	httpx "marlin/internal/transport/http"
)

type App struct {
	gw       *hyperliquid.Client
	market   *market.Service
	store    *store.Store
	oi       *market.OIAverager
	source   ai.DecisionSource
	notifier *notify.Telegram
	server   *httpx.Server

	mu      sync.RWMutex
	cfg     *config.Config
	engine  *trade.Engine
	symbols []string
}

// New connects everything. A gateway that cannot be dialed is fatal; the
// caller exits.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	gw, err := hyperliquid.Dial(ctx, hyperliquid.Options{
		BaseURL:    cfg.Exchange.BaseURL,
		PrivateKey: cfg.Exchange.PrivateKey,
		Testnet:    cfg.Exchange.Testnet,
		Timeout:    cfg.Exchange.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange gateway: %w", err)
	}

	mkt := market.NewService(gw, time.Hour)
	if err := mkt.Meta().Warm(ctx, cfg.Symbols); err != nil {
		return nil, fmt.Errorf("warm instrument metadata: %w", err)
	}

	a := &App{
		gw:       gw,
		market:   mkt,
		store:    st,
		oi:       market.NewOIAverager(st, 0),
		source:   ai.NewOpenAI(openAIConfig(cfg)),
		notifier: notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID),
	}
	if cfg.Server.Enabled {
		a.server = httpx.NewServer(cfg.Server.Addr, mkt, st)
	}
	a.applyLocked(cfg)
	return a, nil
}

// ApplyConfig swaps in a hot-reloaded configuration. Only the policy,
// risk and execution surface takes effect; connection-level settings
// need a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyLocked(cfg)
	logger.Infof("[app] runtime configuration applied (policy=%s mode=%s)",
		cfg.Policy.SignalPolicy, cfg.Risk.SizingMode)
}

func (a *App) applyLocked(cfg *config.Config) {
	a.cfg = cfg
	a.symbols = cfg.Symbols
	a.engine = trade.NewEngine(engineConfig(cfg), a.gw, a.market, a.store)
}

// Run blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.server != nil {
		a.server.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.server.Shutdown(sctx); err != nil {
				logger.Warnf("[app] http shutdown: %v", err)
			}
		}()
	}

	a.mu.RLock()
	interval := a.cfg.Schedule.Interval
	// Testnet runs get a cycle immediately so changes can be exercised
	// without waiting out the first interval.
	immediate := a.cfg.Schedule.RunImmediately || a.cfg.Exchange.Testnet
	a.mu.RUnlock()

	scheduler.Interval(ctx, "decision-cycle", interval, immediate, a.Cycle)
	return nil
}

func engineConfig(cfg *config.Config) trade.EngineConfig {
	return trade.EngineConfig{
		Policy:            trade.Policy(cfg.Policy.SignalPolicy),
		FlipConfidence:    cfg.Policy.FlipConfidence,
		MinOpenConfidence: cfg.Policy.MinOpenConfidence,
		LeverageMax:       cfg.Risk.LeverageMax,
		LeverageCross:     cfg.Risk.LeverageMode == "cross",
		SyncLeverage:      cfg.Risk.SyncLeverage,

		DefaultTpPct: cfg.Execution.DefaultTpPct,
		DefaultSlPct: cfg.Execution.DefaultSlPct,

		EntrySlippagePct:    cfg.Execution.EntrySlippagePct,
		MaxEntrySlippageBps: cfg.Execution.MaxEntrySlippageBps,
		EntryEpsTicks:       cfg.Execution.EntryEpsTicks,
		CloseSlippageBps:    cfg.Execution.CloseSlippageBps,

		Sizing: sizing.Config{
			Mode:              sizing.Mode(cfg.Risk.SizingMode),
			MinOrderUSD:       cfg.Risk.MinOrderUSD,
			PositionUSD:       cfg.Risk.PositionUSD,
			AcceptModelSizing: cfg.Risk.AcceptModelSizing,
			RiskPctDefault:    cfg.Risk.RiskPctDefault,
			RiskPctMin:        cfg.Risk.RiskPctMin,
			RiskPctMax:        cfg.Risk.RiskPctMax,
			LeverageMax:       cfg.Risk.LeverageMax,
			NumSymbols:        len(cfg.Symbols),
		},
	}
}

func openAIConfig(cfg *config.Config) ai.OpenAIConfig {
	return ai.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	}
}

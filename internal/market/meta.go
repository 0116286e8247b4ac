package market

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"marlin/internal/gateway/exchange"
	"marlin/internal/logger"
	"marlin/internal/pkg/symbol"

	"context"
)

// Static fallbacks for majors, used only when the exchange metadata
// genuinely lacks an entry.
var fallbackSzDecimals = map[string]int{
	"BTC": 5, "ETH": 4, "SOL": 2, "BNB": 3,
	"XRP": 0, "DOGE": 0, "NEAR": 1,
}

const defaultMetaTTL = time.Hour

// MetaCache holds per-instrument size-decimal precision with TTL-based
// invalidation and a forced-refresh path on miss. Concurrent rebuilds
// collapse into one exchange call.
type MetaCache struct {
	gw  exchange.Gateway
	ttl time.Duration

	mu       sync.RWMutex
	decimals map[string]int
	builtAt  time.Time

	group singleflight.Group
}

func NewMetaCache(gw exchange.Gateway, ttl time.Duration) *MetaCache {
	if ttl <= 0 {
		ttl = defaultMetaTTL
	}
	return &MetaCache{gw: gw, ttl: ttl, decimals: make(map[string]int)}
}

// SzDecimals returns the lot precision for a symbol, rebuilding the cache
// when stale and once more, forced, when the symbol is missing.
func (c *MetaCache) SzDecimals(ctx context.Context, sym string) (int, error) {
	coin := symbol.Base(sym)
	if err := c.rebuild(ctx, false); err != nil {
		return 0, err
	}
	if d, ok := c.lookup(coin); ok {
		return d, nil
	}
	if err := c.rebuild(ctx, true); err != nil {
		return 0, err
	}
	if d, ok := c.lookup(coin); ok {
		return d, nil
	}
	if d, ok := fallbackSzDecimals[coin]; ok {
		logger.Warnf("[meta] using fallback szDecimals for %s: %d", coin, d)
		c.mu.Lock()
		c.decimals[coin] = d
		c.mu.Unlock()
		return d, nil
	}
	return 0, fmt.Errorf("no szDecimals for %s", coin)
}

// Warm force-builds the cache once at startup for the tracked symbols.
func (c *MetaCache) Warm(ctx context.Context, symbols []string) error {
	if err := c.rebuild(ctx, true); err != nil {
		return err
	}
	for _, s := range symbols {
		if _, err := c.SzDecimals(ctx, s); err != nil {
			return fmt.Errorf("warm meta cache for %s: %w", s, err)
		}
	}
	return nil
}

// Invalidate empties the cache, forcing the next lookup to rebuild.
func (c *MetaCache) Invalidate() {
	c.mu.Lock()
	c.decimals = make(map[string]int)
	c.builtAt = time.Time{}
	c.mu.Unlock()
}

func (c *MetaCache) lookup(coin string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.decimals[coin]
	return d, ok
}

func (c *MetaCache) rebuild(ctx context.Context, force bool) error {
	if !force && c.fresh() {
		return nil
	}
	_, err, _ := c.group.Do("meta", func() (any, error) {
		// Another caller may have rebuilt while we queued.
		if !force && c.fresh() {
			return nil, nil
		}
		meta, err := c.gw.Meta(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch exchange meta: %w", err)
		}
		next := make(map[string]int, len(meta))
		for _, m := range meta {
			next[symbol.Base(m.Coin)] = m.SzDecimals
		}
		c.mu.Lock()
		c.decimals = next
		c.builtAt = time.Now()
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

func (c *MetaCache) fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.decimals) > 0 && time.Since(c.builtAt) < c.ttl
}

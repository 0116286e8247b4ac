// Package hyperliquid is the concrete exchange gateway: REST info queries
// plus EIP-712 signed exchange actions against the Hyperliquid API.
package hyperliquid

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"marlin/internal/logger"
	"marlin/internal/pkg/circuit"
)

const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"

	dialAttempts = 5
	dialBackoff  = 3 * time.Second
)

// Options configures the gateway connection.
type Options struct {
	BaseURL    string
	PrivateKey string // hex, with or without 0x prefix
	Testnet    bool
	Timeout    time.Duration
}

// Client implements exchange.Gateway against the Hyperliquid REST API.
type Client struct {
	baseURL string
	testnet bool
	http    *http.Client
	key     *ecdsa.PrivateKey
	address string
	breaker *circuit.Breaker

	mu     sync.RWMutex
	assets map[string]int // coin -> universe index
}

// New builds an unconnected client. Dial is the checked constructor used
// at startup.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		if opts.Testnet {
			opts.BaseURL = TestnetURL
		} else {
			opts.BaseURL = MainnetURL
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	var key *ecdsa.PrivateKey
	var address string
	if opts.PrivateKey != "" {
		k, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		key = k
		address = strings.ToLower(crypto.PubkeyToAddress(k.PublicKey).Hex())
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		testnet: opts.Testnet,
		http:    &http.Client{Timeout: opts.Timeout},
		key:     key,
		address: address,
		breaker: circuit.NewBreaker("hyperliquid-info", 5, 30*time.Second),
		assets:  make(map[string]int),
	}, nil
}

// Dial constructs the client and verifies connectivity with bounded
// retries. Exhausting the retries is fatal to the caller: no valid
// trading is possible without a connection.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		if _, lastErr = c.Meta(ctx); lastErr == nil {
			logger.Infof("[hyperliquid] connected to %s (account %s)", c.baseURL, c.address)
			return c, nil
		}
		logger.Warnf("[hyperliquid] dial attempt %d/%d failed: %v", attempt, dialAttempts, lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	return nil, fmt.Errorf("dial %s after %d attempts: %w", c.baseURL, dialAttempts, lastErr)
}

func (c *Client) Name() string { return "hyperliquid" }

// Address returns the account address derived from the signing key.
func (c *Client) Address() string { return c.address }

// info posts a query to /info behind the circuit breaker and returns the
// raw response body.
func (c *Client) info(ctx context.Context, req map[string]any) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("info %v: circuit open", req["type"])
	}
	body, err := c.post(ctx, "/info", req)
	if err != nil {
		c.breaker.Failure()
		return nil, err
	}
	c.breaker.Success()
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// assetIndex maps a coin to its index in the perp universe, refreshing
// the mapping once on miss.
func (c *Client) assetIndex(ctx context.Context, coin string) (int, error) {
	c.mu.RLock()
	idx, ok := c.assets[coin]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}
	if _, err := c.Meta(ctx); err != nil {
		return 0, err
	}
	c.mu.RLock()
	idx, ok = c.assets[coin]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("unknown instrument %q", coin)
	}
	return idx, nil
}

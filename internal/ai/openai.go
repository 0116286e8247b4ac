package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"marlin/internal/logger"
	"marlin/internal/pkg/jsonutil"
)

const systemPrompt = `You are a disciplined perpetual-futures trading assistant.
Given the account and market snapshot, reply with ONE JSON object keyed by coin symbol
(e.g. "ETH"). Each entry must contain "signal" ("buy", "sell" or "hold") and may contain
"quantity", "profit_target", "stop_loss", "leverage", "risk_usd", "risk_pct",
"confidence" (0..1) and "invalidation_condition". No prose, no markdown outside the JSON.`

// OpenAIConfig points at any OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type OpenAI struct {
	cfg  OpenAIConfig
	http *http.Client
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAI{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Decide sends the snapshot and extracts the decision object from the
// model's reply, tolerating fenced blocks and response envelopes.
func (o *OpenAI) Decide(ctx context.Context, snap Snapshot) ([]byte, error) {
	user, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	body, err := json.Marshal(chatRequest{
		Model:       o.cfg.Model,
		Temperature: o.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(user)},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, trim(raw, 200))
	}

	content := gjson.GetBytes(raw, "choices.0.message.content").String()
	if content == "" {
		return nil, fmt.Errorf("chat completion: empty content")
	}
	return ExtractDecisions(content)
}

// ExtractDecisions pulls the decision object out of free-form model
// output: a fenced block or the first balanced JSON object, with an
// optional llm_response envelope unwrapped.
func ExtractDecisions(content string) ([]byte, error) {
	obj, ok := jsonutil.ExtractObject(content)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model output: %s", trim([]byte(content), 120))
	}
	if inner := gjson.Get(obj, "llm_response"); inner.Exists() && inner.IsObject() {
		logger.Debugf("[ai] unwrapping llm_response envelope")
		obj = inner.Raw
	}
	return []byte(obj), nil
}

func trim(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

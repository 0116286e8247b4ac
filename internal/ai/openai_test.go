package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestExtractDecisions(t *testing.T) {
	t.Run("fenced block", func(t *testing.T) {
		out, err := ExtractDecisions("Here is my analysis.\n```json\n{\"ETH\": {\"signal\": \"buy\"}}\n```")
		require.NoError(t, err)
		assert.Equal(t, "buy", gjson.GetBytes(out, "ETH.signal").String())
	})

	t.Run("bare object with surrounding prose", func(t *testing.T) {
		out, err := ExtractDecisions(`Based on funding, {"BTC": {"signal": "hold"}} is my call.`)
		require.NoError(t, err)
		assert.Equal(t, "hold", gjson.GetBytes(out, "BTC.signal").String())
	})

	t.Run("llm_response envelope unwrapped", func(t *testing.T) {
		out, err := ExtractDecisions(`{"llm_response": {"ETH": {"signal": "sell", "confidence": 0.7}}}`)
		require.NoError(t, err)
		assert.Equal(t, "sell", gjson.GetBytes(out, "ETH.signal").String())
	})

	t.Run("no object is an error", func(t *testing.T) {
		_, err := ExtractDecisions("I cannot decide right now.")
		assert.Error(t, err)
	})
}

func TestOpenAIDecide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		content := `{\"ETH\": {\"signal\": \"buy\", \"confidence\": 0.8}}`
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":"%s"}}]}`, content)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4o"})
	out, err := o.Decide(context.Background(), Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, 0.8, gjson.GetBytes(out, "ETH.confidence").Float())
}

func TestOpenAIDecideErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
		}))
		defer srv.Close()
		_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Decide(context.Background(), Snapshot{})
		assert.Error(t, err)
	})

	t.Run("empty content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"choices":[]}`)
		}))
		defer srv.Close()
		_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Decide(context.Background(), Snapshot{})
		assert.Error(t, err)
	})
}

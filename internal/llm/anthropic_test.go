package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redteam-monitor/backend/pkg/circuitbreaker"
	"github.com/redteam-monitor/backend/pkg/config"
	"github.com/redteam-monitor/backend/pkg/retry"
)

func testAnthropic(endpoint string) *AnthropicGenerator {
	gen := NewAnthropicGenerator(config.LLMConfig{
		Provider:   "anthropic",
		Model:      "claude-3-haiku-20240307",
		APIKey:     "test-key",
		MaxTokens:  1024,
		TimeoutSec: 5,
	})
	gen.endpoint = endpoint
	gen.retryCfg = retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond}
	gen.cb = circuitbreaker.New("test", circuitbreaker.Config{})
	return gen
}

func TestAnthropicGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "analysis here"}},
		})
	}))
	defer server.Close()

	got, err := testAnthropic(server.URL).Generate(context.Background(), "analyze this")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "analysis here" {
		t.Errorf("Generate = %q", got)
	}
}

func TestAnthropicGenerate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := testAnthropic(server.URL).Generate(context.Background(), "analyze"); err == nil {
		t.Fatal("expected error from API failure")
	}
}

func TestNew_ProviderSelection(t *testing.T) {
	if _, err := New(config.LLMConfig{Provider: "openai"}); err == nil {
		t.Error("expected error for missing API key")
	}

	if _, err := New(config.LLMConfig{Provider: "mistral", APIKey: "k"}); err == nil {
		t.Error("expected error for unsupported provider")
	}

	gen, err := New(config.LLMConfig{Provider: "openai", APIKey: "k", Model: "gpt-4o-mini", MaxTokens: 512, TimeoutSec: 10})
	if err != nil {
		t.Fatalf("New(openai) failed: %v", err)
	}
	if _, ok := gen.(*OpenAIGenerator); !ok {
		t.Errorf("New(openai) returned %T", gen)
	}

	gen, err = New(config.LLMConfig{Provider: "anthropic", APIKey: "k", Model: "claude-3-haiku-20240307", MaxTokens: 512, TimeoutSec: 10})
	if err != nil {
		t.Fatalf("New(anthropic) failed: %v", err)
	}
	if _, ok := gen.(*AnthropicGenerator); !ok {
		t.Errorf("New(anthropic) returned %T", gen)
	}
}

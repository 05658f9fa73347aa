package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/pkg/circuitbreaker"
	"github.com/redteam-monitor/backend/pkg/config"
	"github.com/redteam-monitor/backend/pkg/logger"
	"github.com/redteam-monitor/backend/pkg/retry"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
)

// AnthropicGenerator speaks the messages API directly over HTTP.
type AnthropicGenerator struct {
	endpoint   string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	retryCfg   retry.Config
}

func NewAnthropicGenerator(cfg config.LLMConfig) *AnthropicGenerator {
	cb := circuitbreaker.New("anthropic", circuitbreaker.Config{
		MaxRequests:      5,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryCfg := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Anthropic generator initialized", zap.String("model", cfg.Model))

	return &AnthropicGenerator{
		endpoint:  anthropicEndpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
		cb:       cb,
		retryCfg: retryCfg,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var result string

	err := g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryCfg, func() error {
			text, err := g.complete(ctx, prompt)
			if err != nil {
				return err
			}
			result = text
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

func (g *AnthropicGenerator) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("anthropic error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic response has no content blocks")
	}

	return parsed.Content[0].Text, nil
}

package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/pkg/circuitbreaker"
	"github.com/redteam-monitor/backend/pkg/config"
	"github.com/redteam-monitor/backend/pkg/logger"
	"github.com/redteam-monitor/backend/pkg/retry"
)

const analystSystemPrompt = "You are a helpful AI research assistant skilled at analyzing academic papers."

type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	cb        *circuitbreaker.CircuitBreaker
	retryCfg  retry.Config
}

func NewOpenAIGenerator(cfg config.LLMConfig) *OpenAIGenerator {
	cb := circuitbreaker.New("openai", circuitbreaker.Config{
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

	logger.Info("OpenAI generator initialized", zap.String("model", cfg.Model))

	return &OpenAIGenerator{
		client:    openai.NewClient(cfg.APIKey),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   time.Duration(cfg.TimeoutSec) * time.Second,
		cb:        cb,
		retryCfg:  retryCfg,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var result string

	err := g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryCfg, func() error {
			resp, err := g.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: g.model,
					Messages: []openai.ChatCompletionMessage{
						{Role: openai.ChatMessageRoleSystem, Content: analystSystemPrompt},
						{Role: openai.ChatMessageRoleUser, Content: prompt},
					},
					MaxTokens: g.maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("OpenAI completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

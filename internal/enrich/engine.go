package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/internal/llm"
	"github.com/redteam-monitor/backend/internal/metrics"
	"github.com/redteam-monitor/backend/internal/storage/models"
	"github.com/redteam-monitor/backend/pkg/config"
	"github.com/redteam-monitor/backend/pkg/logger"
)

// Engine turns raw papers into enriched ones through a TextGenerator. Papers
// are worked in fixed-size batches with a pause between batches so a metered
// provider is never hammered; a failure on one paper never aborts the rest.
type Engine struct {
	generator  llm.TextGenerator
	batchSize  int
	batchDelay time.Duration

	// pause is swapped out by tests to observe inter-batch delays.
	pause func(ctx context.Context, d time.Duration) error
}

func NewEngine(generator llm.TextGenerator, cfg config.LLMConfig) *Engine {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	return &Engine{
		generator:  generator,
		batchSize:  batchSize,
		batchDelay: time.Duration(cfg.BatchDelay) * time.Second,
		pause:      blockingPause,
	}
}

func blockingPause(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Process enriches the given papers and returns every one of them, failures
// included, for the caller to persist. Already-enriched papers pass through
// unchanged.
func (e *Engine) Process(ctx context.Context, papers []models.Paper) ([]models.Paper, error) {
	if len(papers) == 0 {
		logger.Info("No papers to process")
		return nil, nil
	}

	processed := make([]models.Paper, 0, len(papers))
	totalBatches := (len(papers) + e.batchSize - 1) / e.batchSize

	for i := 0; i < len(papers); i += e.batchSize {
		end := i + e.batchSize
		if end > len(papers) {
			end = len(papers)
		}
		batch := papers[i:end]

		logger.Info("Processing batch",
			zap.Int("batch", i/e.batchSize+1),
			zap.Int("total_batches", totalBatches),
			zap.Int("size", len(batch)),
		)

		for _, paper := range batch {
			processed = append(processed, e.enrichOne(ctx, paper))
		}

		if end < len(papers) {
			logger.Debug("Pausing between batches", zap.Duration("delay", e.batchDelay))
			if err := e.pause(ctx, e.batchDelay); err != nil {
				return processed, err
			}
		}
	}

	return processed, nil
}

func (e *Engine) enrichOne(ctx context.Context, paper models.Paper) models.Paper {
	if paper.Enriched {
		logger.Info("Skipping already enriched paper", zap.String("paper_id", paper.ID))
		return paper
	}

	start := time.Now()
	response, err := e.generator.Generate(ctx, BuildPrompt(paper))
	metrics.LLMCallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return e.fail(paper, fmt.Errorf("generation failed: %w", err))
	}

	result, err := parseResponse(response)
	if err != nil {
		return e.fail(paper, err)
	}

	if missing := result.missingKeys(); len(missing) > 0 {
		logger.Warn("LLM response missing expected keys",
			zap.String("paper_id", paper.ID),
			zap.Strings("missing", missing),
		)
	}

	now := time.Now()
	paper.BriefOverview = result.overview()
	paper.TechnicalExplanation = result.explanation()
	paper.AttackCategories = result.categories()
	paper.RelevanceScore = result.relevance()
	paper.Enriched = true
	paper.EnrichedAt = &now
	paper.ProcessingError = ""

	metrics.PapersEnriched.Inc()
	logger.Info("Successfully enriched paper", zap.String("paper_id", paper.ID))

	return paper
}

// fail marks the paper as attempted-and-failed without touching any other
// enrichment field, so the next processing run retries it.
func (e *Engine) fail(paper models.Paper, err error) models.Paper {
	logger.Error("Failed to enrich paper", zap.String("paper_id", paper.ID), zap.Error(err))
	paper.ProcessingError = err.Error()
	metrics.EnrichmentFailures.Inc()
	return paper
}

// BuildPrompt renders the deterministic analysis prompt for one paper.
func BuildPrompt(paper models.Paper) string {
	return fmt.Sprintf(`You are an expert in AI security and AI red teaming research. Analyze this research paper and provide:

1. A brief overview (2-3 sentences summarizing the paper's main contribution)
2. A technical explanation (5-7 sentences explaining the key technical details)
3. Categorization by attack type (choose the most relevant categories from: prompt injection, jailbreaking, adversarial examples, model extraction, data poisoning, model backdoor attacks, privacy attacks, model stealing, reward hacking, social engineering, or any other relevant category). They must be related to AI Red teaming research specifically.
4. Relevance score for AI red teaming (1-10, with 10 being most relevant)

Paper Title: %s
Authors: %s
Abstract: %s

Return ONLY a JSON object with these keys:
{
  "brief_overview": "...",
  "technical_explanation": "...",
  "categories": ["category1", "category2"],
  "relevance_score": number
}`, paper.Title, strings.Join(paper.Authors, ", "), paper.Summary)
}

type enrichmentResult struct {
	BriefOverview        *string  `json:"brief_overview"`
	TechnicalExplanation *string  `json:"technical_explanation"`
	Categories           []string `json:"categories"`
	RelevanceScore       *float64 `json:"relevance_score"`
}

// parseResponse extracts the first balanced brace span (first '{' to last
// '}') from the raw model output and decodes it. No span or invalid JSON is
// a hard failure for the paper.
func parseResponse(response string) (*enrichmentResult, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var result enrichmentResult
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return &result, nil
}

func (r *enrichmentResult) missingKeys() []string {
	var missing []string
	if r.BriefOverview == nil {
		missing = append(missing, "brief_overview")
	}
	if r.TechnicalExplanation == nil {
		missing = append(missing, "technical_explanation")
	}
	if r.Categories == nil {
		missing = append(missing, "categories")
	}
	if r.RelevanceScore == nil {
		missing = append(missing, "relevance_score")
	}
	return missing
}

func (r *enrichmentResult) overview() string {
	if r.BriefOverview == nil {
		return "Not provided"
	}
	return *r.BriefOverview
}

func (r *enrichmentResult) explanation() string {
	if r.TechnicalExplanation == nil {
		return "Not provided"
	}
	return *r.TechnicalExplanation
}

func (r *enrichmentResult) categories() []string {
	if len(r.Categories) == 0 {
		return []string{"unclassified"}
	}
	return r.Categories
}

func (r *enrichmentResult) relevance() int {
	if r.RelevanceScore == nil {
		return 0
	}
	return int(*r.RelevanceScore)
}

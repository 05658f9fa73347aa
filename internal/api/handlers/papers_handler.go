package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/internal/query"
	"github.com/redteam-monitor/backend/internal/storage/models"
	"github.com/redteam-monitor/backend/pkg/logger"
)

// PapersHandler exposes the query facade to the dashboard. It serves data
// only; rendering lives with the consumer.
type PapersHandler struct {
	facade *query.Facade
}

func NewPapersHandler(facade *query.Facade) *PapersHandler {
	return &PapersHandler{facade: facade}
}

type paperResponse struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Summary              string   `json:"summary"`
	Authors              []string `json:"authors"`
	Published            string   `json:"published"`
	Updated              string   `json:"updated"`
	SourceCategories     []string `json:"source_categories"`
	PDFURL               string   `json:"pdf_url"`
	AbstractURL          string   `json:"abstract_url"`
	BriefOverview        string   `json:"brief_overview"`
	TechnicalExplanation string   `json:"technical_explanation"`
	AttackCategories     []string `json:"attack_categories"`
	RelevanceScore       int      `json:"relevance_score"`
	RelevanceBand        string   `json:"relevance_band"`
	EnrichedAt           string   `json:"enriched_at,omitempty"`
}

func (h *PapersHandler) ListPapers(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	category := c.Query("category")
	minRelevance := c.QueryInt("min_relevance", 0)

	papers, err := h.facade.Recent(days, category, minRelevance)
	if err != nil {
		logger.Error("Failed to query papers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query papers",
		})
	}

	out := make([]paperResponse, 0, len(papers))
	for _, p := range papers {
		out = append(out, toResponse(p))
	}

	return c.JSON(fiber.Map{
		"count":  len(out),
		"papers": out,
	})
}

func (h *PapersHandler) ListCategories(c *fiber.Ctx) error {
	categories, err := h.facade.Categories()
	if err != nil {
		logger.Error("Failed to query categories", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query categories",
		})
	}
	if categories == nil {
		categories = []string{}
	}

	return c.JSON(fiber.Map{"categories": categories})
}

func (h *PapersHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.facade.Stats()
	if err != nil {
		logger.Error("Failed to query stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query stats",
		})
	}

	return c.JSON(stats)
}

func toResponse(p models.Paper) paperResponse {
	resp := paperResponse{
		ID:                   p.ID,
		Title:                p.Title,
		Summary:              p.Summary,
		Authors:              p.Authors,
		Published:            p.Published.Format("2006-01-02"),
		Updated:              p.Updated.Format("2006-01-02"),
		SourceCategories:     p.SourceCategories,
		PDFURL:               p.PDFURL,
		AbstractURL:          p.AbstractURL,
		BriefOverview:        p.BriefOverview,
		TechnicalExplanation: p.TechnicalExplanation,
		AttackCategories:     p.AttackCategories,
		RelevanceScore:       p.RelevanceScore,
		RelevanceBand:        p.RelevanceBand(),
	}
	if p.EnrichedAt != nil {
		resp.EnrichedAt = p.EnrichedAt.Format(time.RFC3339)
	}
	return resp
}

package models

import "time"

// Paper is one arXiv entry tracked by the monitor. ID is the arXiv
// identifier (trailing path segment of the entry URL) and is immutable.
//
// A paper is either raw (Enriched false) or enriched (Enriched true).
// ProcessingError records the last failed enrichment attempt; it does not
// change the state, so a failed paper is picked up again on the next run.
type Paper struct {
	ID               string
	Title            string
	Summary          string
	Authors          []string
	Published        time.Time
	Updated          time.Time
	SourceCategories []string
	PDFURL           string
	AbstractURL      string

	BriefOverview        string
	TechnicalExplanation string
	AttackCategories     []string
	RelevanceScore       int

	Enriched        bool
	EnrichedAt      *time.Time
	ProcessingError string
	CreatedAt       time.Time
}

// RelevanceBand buckets the 1-10 score the way the digest and dashboard
// color-code it.
func (p Paper) RelevanceBand() string {
	switch {
	case p.RelevanceScore >= 8:
		return "high"
	case p.RelevanceScore >= 5:
		return "medium"
	default:
		return "low"
	}
}

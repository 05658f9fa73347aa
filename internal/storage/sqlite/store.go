package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/internal/storage/models"
	"github.com/redteam-monitor/backend/pkg/logger"
)

// Store is the single source of truth for collected papers. All list-typed
// fields round-trip through JSON text columns; that serialization lives here
// and nowhere else.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	logger.Info("Paper store initialized", zap.String("path", dbPath))

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS papers (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		summary TEXT NOT NULL,
		authors TEXT NOT NULL,
		published INTEGER NOT NULL,
		updated INTEGER NOT NULL,
		source_categories TEXT NOT NULL,
		pdf_url TEXT NOT NULL,
		abstract_url TEXT NOT NULL,
		brief_overview TEXT,
		technical_explanation TEXT,
		attack_categories TEXT,
		relevance_score INTEGER DEFAULT 0,
		enriched INTEGER NOT NULL DEFAULT 0,
		enriched_at INTEGER,
		processing_error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_papers_published ON papers(published);
	CREATE INDEX IF NOT EXISTS idx_papers_enriched ON papers(enriched);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Paper store schema initialized")
	return nil
}

// Upsert inserts new papers and updates existing ones in place, keyed by the
// arXiv id. On conflict only the descriptive fields are rewritten; the
// enrichment columns are touched only when the incoming record is enriched
// or carries a processing error, so a re-collection can never erase an
// earlier enrichment. Each record commits independently: one bad row does
// not roll back the batch.
func (s *Store) Upsert(papers []models.Paper) (int, error) {
	if len(papers) == 0 {
		return 0, nil
	}

	const upsertRaw = `
		INSERT INTO papers (id, title, summary, authors, published, updated,
			source_categories, pdf_url, abstract_url, relevance_score, enriched,
			processing_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, '', ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			authors = excluded.authors,
			published = excluded.published,
			updated = excluded.updated,
			source_categories = excluded.source_categories,
			pdf_url = excluded.pdf_url,
			abstract_url = excluded.abstract_url
	`

	const upsertEnrichment = `
		INSERT INTO papers (id, title, summary, authors, published, updated,
			source_categories, pdf_url, abstract_url, brief_overview,
			technical_explanation, attack_categories, relevance_score, enriched,
			enriched_at, processing_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			authors = excluded.authors,
			published = excluded.published,
			updated = excluded.updated,
			source_categories = excluded.source_categories,
			pdf_url = excluded.pdf_url,
			abstract_url = excluded.abstract_url,
			brief_overview = excluded.brief_overview,
			technical_explanation = excluded.technical_explanation,
			attack_categories = excluded.attack_categories,
			relevance_score = excluded.relevance_score,
			enriched = excluded.enriched,
			enriched_at = excluded.enriched_at,
			processing_error = excluded.processing_error
	`

	affected := 0
	var firstErr error

	for _, p := range papers {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		var err error
		if p.Enriched || p.ProcessingError != "" {
			var enrichedAt interface{}
			if p.EnrichedAt != nil {
				enrichedAt = p.EnrichedAt.Unix()
			}
			_, err = s.db.Exec(upsertEnrichment,
				p.ID, p.Title, p.Summary, marshalList(p.Authors),
				p.Published.Unix(), p.Updated.Unix(), marshalList(p.SourceCategories),
				p.PDFURL, p.AbstractURL,
				p.BriefOverview, p.TechnicalExplanation, marshalList(p.AttackCategories),
				p.RelevanceScore, boolToInt(p.Enriched), enrichedAt,
				p.ProcessingError, createdAt.Unix(),
			)
		} else {
			_, err = s.db.Exec(upsertRaw,
				p.ID, p.Title, p.Summary, marshalList(p.Authors),
				p.Published.Unix(), p.Updated.Unix(), marshalList(p.SourceCategories),
				p.PDFURL, p.AbstractURL, createdAt.Unix(),
			)
		}

		if err != nil {
			logger.Error("Failed to upsert paper", zap.String("paper_id", p.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to upsert paper %s: %w", p.ID, err)
			}
			continue
		}
		affected++
	}

	logger.Info("Papers saved", zap.Int("count", affected), zap.Int("batch", len(papers)))
	return affected, firstErr
}

// FindUnenriched returns raw papers newest first. A limit of 0 means no cap.
func (s *Store) FindUnenriched(limit int) ([]models.Paper, error) {
	query := selectColumns + ` FROM papers WHERE enriched = 0 ORDER BY published DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryPapers(query, args...)
}

// FindByFilters returns enriched papers only. minPublished is an inclusive
// lower bound on the publication date, category matches membership in the
// attack categories, and minRelevance is an inclusive score floor; the zero
// value of each disables that filter.
func (s *Store) FindByFilters(minPublished *time.Time, category string, minRelevance int) ([]models.Paper, error) {
	query := selectColumns + ` FROM papers WHERE enriched = 1`
	var args []interface{}

	if minPublished != nil {
		query += ` AND published >= ?`
		args = append(args, minPublished.Unix())
	}
	if category != "" {
		// Probe the JSON-serialized list for the quoted element.
		query += ` AND attack_categories LIKE ?`
		args = append(args, `%"`+category+`"%`)
	}
	if minRelevance > 0 {
		query += ` AND relevance_score >= ?`
		args = append(args, minRelevance)
	}

	query += ` ORDER BY published DESC`

	return s.queryPapers(query, args...)
}

// DistinctCategories returns the sorted union of attack categories across
// all enriched papers.
func (s *Store) DistinctCategories() ([]string, error) {
	rows, err := s.db.Query(`SELECT attack_categories FROM papers WHERE enriched = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for _, cat := range unmarshalList(raw.String) {
			seen[cat] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	categories := make([]string, 0, len(seen))
	for cat := range seen {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	return categories, nil
}

type Stats struct {
	Total         int `json:"total"`
	EnrichedCount int `json:"enriched_count"`
	RecentCount   int `json:"recent_count"`
}

// Stats reports collection totals; RecentCount covers papers published in
// the last 7 days regardless of enrichment state.
func (s *Store) Stats() (Stats, error) {
	var stats Stats

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM papers`).Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("failed to count papers: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM papers WHERE enriched = 1`).Scan(&stats.EnrichedCount); err != nil {
		return stats, fmt.Errorf("failed to count enriched papers: %w", err)
	}

	weekAgo := time.Now().AddDate(0, 0, -7).Unix()
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM papers WHERE published >= ?`, weekAgo).Scan(&stats.RecentCount); err != nil {
		return stats, fmt.Errorf("failed to count recent papers: %w", err)
	}

	return stats, nil
}

const selectColumns = `SELECT id, title, summary, authors, published, updated,
	source_categories, pdf_url, abstract_url, brief_overview,
	technical_explanation, attack_categories, relevance_score, enriched,
	enriched_at, processing_error, created_at`

func (s *Store) queryPapers(query string, args ...interface{}) ([]models.Paper, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query papers: %w", err)
	}
	defer rows.Close()

	var papers []models.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate papers: %w", err)
	}

	return papers, nil
}

func scanPaper(rows *sql.Rows) (models.Paper, error) {
	var (
		p                models.Paper
		authors          string
		sourceCategories string
		published        int64
		updated          int64
		overview         sql.NullString
		explanation      sql.NullString
		attackCategories sql.NullString
		relevance        sql.NullInt64
		enriched         int
		enrichedAt       sql.NullInt64
		processingError  sql.NullString
		createdAt        int64
	)

	err := rows.Scan(
		&p.ID, &p.Title, &p.Summary, &authors, &published, &updated,
		&sourceCategories, &p.PDFURL, &p.AbstractURL, &overview,
		&explanation, &attackCategories, &relevance, &enriched,
		&enrichedAt, &processingError, &createdAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan row: %w", err)
	}

	p.Authors = unmarshalList(authors)
	p.SourceCategories = unmarshalList(sourceCategories)
	p.Published = time.Unix(published, 0)
	p.Updated = time.Unix(updated, 0)
	p.BriefOverview = overview.String
	p.TechnicalExplanation = explanation.String
	p.AttackCategories = unmarshalList(attackCategories.String)
	p.RelevanceScore = int(relevance.Int64)
	p.Enriched = enriched != 0
	if enrichedAt.Valid {
		t := time.Unix(enrichedAt.Int64, 0)
		p.EnrichedAt = &t
	}
	p.ProcessingError = processingError.String
	p.CreatedAt = time.Unix(createdAt, 0)

	return p, nil
}

func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func unmarshalList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		logger.Warn("Failed to parse list column", zap.String("raw", raw), zap.Error(err))
		return nil
	}
	return items
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

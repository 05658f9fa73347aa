package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/internal/storage/models"
	"github.com/redteam-monitor/backend/pkg/config"
	"github.com/redteam-monitor/backend/pkg/logger"
	"github.com/redteam-monitor/backend/pkg/retry"
)

// Client collects papers from the arXiv search API. It owns pagination and
// the per-request delay the API asks for; deduplication against the store is
// not its concern, the store's upsert handles that.
type Client struct {
	baseURL    string
	keywords   []string
	categories []string
	pageSize   int
	pageDelay  time.Duration
	httpClient *http.Client
	retryCfg   retry.Config
}

func NewClient(cfg config.ArxivConfig) *Client {
	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = logger.GetLogger()

	return &Client{
		baseURL:    cfg.BaseURL,
		keywords:   cfg.Keywords,
		categories: cfg.Categories,
		pageSize:   cfg.PageSize,
		pageDelay:  time.Duration(cfg.PageDelay) * time.Second,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryCfg:   retryCfg,
	}
}

// BuildQuery combines the keyword OR-clause, a submittedDate window of the
// trailing lookback days, and the subject category allow-list.
func (c *Client) BuildQuery(now time.Time, days int) string {
	quoted := make([]string, 0, len(c.keywords))
	for _, kw := range c.keywords {
		quoted = append(quoted, fmt.Sprintf("%q", kw))
	}
	keywordClause := strings.Join(quoted, " OR ")

	start := now.AddDate(0, 0, -days)
	dateClause := fmt.Sprintf("submittedDate:[%s000000 TO %s235959]",
		start.Format("20060102"), now.Format("20060102"))

	cats := make([]string, 0, len(c.categories))
	for _, cat := range c.categories {
		cats = append(cats, "cat:"+cat)
	}
	categoryClause := strings.Join(cats, " OR ")

	return fmt.Sprintf("(%s) AND (%s) AND (%s)", keywordClause, dateClause, categoryClause)
}

// Collect fetches up to maxResults papers submitted within the last days
// days, newest first, normalized into raw records. On an irrecoverable API
// failure it returns whatever pages already succeeded together with the
// error; the caller decides whether the shortfall matters.
func (c *Client) Collect(ctx context.Context, days, maxResults int) ([]models.Paper, error) {
	query := c.BuildQuery(time.Now(), days)
	logger.Info("Fetching papers", zap.String("query", query), zap.Int("max_results", maxResults))

	var papers []models.Paper
	for start := 0; start < maxResults; start += c.pageSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return papers, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}

		count := c.pageSize
		if remaining := maxResults - start; remaining < count {
			count = remaining
		}

		feed, err := retry.DoWithResult(ctx, c.retryCfg, func() (*atomFeed, error) {
			return c.fetchPage(ctx, query, start, count)
		})
		if err != nil {
			logger.Error("arXiv page fetch failed", zap.Int("start", start), zap.Error(err))
			return papers, fmt.Errorf("failed to fetch arxiv page at offset %d: %w", start, err)
		}

		for _, entry := range feed.Entries {
			papers = append(papers, entry.toPaper())
		}

		// A short page means the feed is exhausted.
		if len(feed.Entries) < count {
			break
		}
	}

	logger.Info("Fetched papers", zap.Int("count", len(papers)))
	return papers, nil
}

func (c *Client) fetchPage(ctx context.Context, query string, start, count int) (*atomFeed, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", fmt.Sprintf("%d", start))
	params.Set("max_results", fmt.Sprintf("%d", count))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "redteam-monitor/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse atom feed: %w", err)
	}

	return &feed, nil
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string `xml:"id"`
	Title      string `xml:"title"`
	Summary    string `xml:"summary"`
	Published  string `xml:"published"`
	Updated    string `xml:"updated"`
	Authors    []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Rel   string `xml:"rel,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

func (e atomEntry) toPaper() models.Paper {
	id := extractID(e.ID)

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		authors = append(authors, strings.TrimSpace(a.Name))
	}

	categories := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		categories = append(categories, c.Term)
	}

	pdfURL := ""
	for _, l := range e.Links {
		if l.Title == "pdf" {
			pdfURL = l.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = "https://arxiv.org/pdf/" + id
	}

	return models.Paper{
		ID:               id,
		Title:            collapseWhitespace(e.Title),
		Summary:          collapseWhitespace(e.Summary),
		Authors:          authors,
		Published:        parseAtomTime(e.Published),
		Updated:          parseAtomTime(e.Updated),
		SourceCategories: categories,
		PDFURL:           pdfURL,
		AbstractURL:      "https://arxiv.org/abs/" + id,
	}
}

// extractID pulls the arXiv identifier out of the canonical entry URL, e.g.
// http://arxiv.org/abs/2401.01234v1 -> 2401.01234v1.
func extractID(entryURL string) string {
	trimmed := strings.TrimSuffix(entryURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func parseAtomTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

// Atom text payloads wrap long lines; fold the whitespace back out.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

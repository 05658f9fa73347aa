package digest

import (
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/redteam-monitor/backend/internal/storage/models"
)

// Builder renders the weekly digest: enriched papers grouped by attack
// category, largest categories first, one color-coded entry per paper.
type Builder struct {
	tmpl *template.Template
}

func NewBuilder() *Builder {
	return &Builder{tmpl: template.Must(template.New("digest").Parse(digestTemplate))}
}

// Build produces the digest HTML document. An empty paper set yields an
// empty string: nothing to say, nothing to send.
func (b *Builder) Build(papers []models.Paper, days int, now time.Time) (string, error) {
	if len(papers) == 0 {
		return "", nil
	}

	groups := groupByCategory(papers)

	data := digestData{
		Days:          days,
		TotalPapers:   len(papers),
		CategoryCount: len(groups),
		Groups:        groups,
		GeneratedAt:   now.Format("2006-01-02"),
	}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}

	return sb.String(), nil
}

type digestData struct {
	Days          int
	TotalPapers   int
	CategoryCount int
	Groups        []categoryGroup
	GeneratedAt   string
}

type categoryGroup struct {
	Name   string
	Papers []digestPaper
}

type digestPaper struct {
	Title       string
	AuthorLine  string
	Published   string
	Score       int
	Band        string
	Overview    string
	AbstractURL string
	PDFURL      string
}

// groupByCategory buckets papers under each of their attack categories (a
// paper with two categories appears twice) and orders buckets by descending
// size, name as the tie-break.
func groupByCategory(papers []models.Paper) []categoryGroup {
	buckets := map[string][]digestPaper{}

	for _, p := range papers {
		entry := toDigestPaper(p)
		categories := p.AttackCategories
		if len(categories) == 0 {
			categories = []string{"Uncategorized"}
		}
		for _, cat := range categories {
			buckets[cat] = append(buckets[cat], entry)
		}
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(buckets[names[i]]) != len(buckets[names[j]]) {
			return len(buckets[names[i]]) > len(buckets[names[j]])
		}
		return names[i] < names[j]
	})

	groups := make([]categoryGroup, 0, len(names))
	for _, name := range names {
		groups = append(groups, categoryGroup{Name: name, Papers: buckets[name]})
	}

	return groups
}

func toDigestPaper(p models.Paper) digestPaper {
	authors := p.Authors
	suffix := ""
	if len(authors) > 3 {
		authors = authors[:3]
		suffix = " et al."
	}

	overview := p.BriefOverview
	if overview == "" {
		overview = "No overview available"
	}

	return digestPaper{
		Title:       p.Title,
		AuthorLine:  strings.Join(authors, ", ") + suffix,
		Published:   p.Published.Format("2006-01-02"),
		Score:       p.RelevanceScore,
		Band:        p.RelevanceBand(),
		Overview:    overview,
		AbstractURL: p.AbstractURL,
		PDFURL:      p.PDFURL,
	}
}

const digestTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>AI Red Teaming Research Digest</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; }
h1 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
h2 { color: #2980b9; margin-top: 30px; }
.paper { margin-bottom: 25px; border-left: 4px solid #3498db; padding-left: 15px; }
.paper-title { font-weight: bold; font-size: 18px; margin-bottom: 5px; }
.paper-meta { font-size: 14px; color: #7f8c8d; margin-bottom: 8px; }
.paper-overview { margin-bottom: 10px; }
.relevance { display: inline-block; padding: 3px 6px; border-radius: 3px; font-size: 12px; font-weight: bold; color: white; }
.relevance-high { background-color: #e74c3c; }
.relevance-medium { background-color: #f39c12; }
.relevance-low { background-color: #3498db; }
.links { font-size: 14px; }
.links a { color: #2980b9; text-decoration: none; margin-right: 15px; }
.footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #eee; font-size: 14px; color: #7f8c8d; }
</style>
</head>
<body>
<h1>AI Red Teaming Research Digest</h1>
<p>Here are the latest AI red teaming research papers from the past {{.Days}} days:</p>
<p><strong>Summary:</strong></p>
<ul>
<li>Total papers: {{.TotalPapers}}</li>
<li>Categories covered: {{.CategoryCount}}</li>
</ul>
{{range .Groups}}
<h2>{{.Name}} ({{len .Papers}} papers)</h2>
{{range .Papers}}
<div class="paper">
<div class="paper-title">{{.Title}}</div>
<div class="paper-meta">
<span>Authors: {{.AuthorLine}}</span>
<span> &bull; </span>
<span>Published: {{.Published}}</span>
<span> &bull; </span>
<span class="relevance relevance-{{.Band}}">Relevance: {{.Score}}/10</span>
</div>
<div class="paper-overview">{{.Overview}}</div>
<div class="links">
<a href="{{.AbstractURL}}" target="_blank">Abstract</a>
<a href="{{.PDFURL}}" target="_blank">PDF</a>
</div>
</div>
{{end}}
{{end}}
<div class="footer">
<p>This digest was generated on {{.GeneratedAt}}.</p>
<p>For more details and filtering options, please visit the dashboard.</p>
</div>
</body>
</html>
`

package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redteam-monitor/backend/pkg/config"
)

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.01234v1</id>
    <title>Universal Adversarial
      Suffixes for Aligned Models</title>
    <summary>We show that a single suffix
      transfers across model families.</summary>
    <published>2024-01-03T18:00:00Z</published>
    <updated>2024-01-04T09:30:00Z</updated>
    <author><name>Alice Example</name></author>
    <author><name>Bob Example</name></author>
    <link href="http://arxiv.org/abs/2401.01234v1" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2401.01234v1" rel="related" title="pdf" type="application/pdf"/>
    <category term="cs.CR"/>
    <category term="cs.LG"/>
  </entry>
</feed>`

func testClient(baseURL string) *Client {
	return NewClient(config.ArxivConfig{
		BaseURL:    baseURL,
		Keywords:   []string{"jailbreak", "prompt injection"},
		Categories: []string{"cs.AI", "cs.CL", "cs.CR", "cs.LG"},
		PageSize:   100,
		PageDelay:  0,
	})
}

func TestBuildQuery(t *testing.T) {
	client := testClient("http://example.invalid")
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	query := client.BuildQuery(now, 7)

	for _, want := range []string{
		`"jailbreak" OR "prompt injection"`,
		"submittedDate:[20240103000000 TO 20240110235959]",
		"cat:cs.AI OR cat:cs.CL OR cat:cs.CR OR cat:cs.LG",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
}

func TestCollect_NormalizesEntries(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		if r.URL.Query().Get("sortBy") != "submittedDate" {
			t.Errorf("sortBy = %q", r.URL.Query().Get("sortBy"))
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomFixture))
	}))
	defer server.Close()

	client := testClient(server.URL)
	papers, err := client.Collect(context.Background(), 7, 100)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !strings.Contains(gotQuery, "jailbreak") {
		t.Errorf("search_query = %q", gotQuery)
	}
	if len(papers) != 1 {
		t.Fatalf("got %d papers, want 1", len(papers))
	}

	p := papers[0]
	if p.ID != "2401.01234v1" {
		t.Errorf("ID = %q, want trailing path segment", p.ID)
	}
	if p.Title != "Universal Adversarial Suffixes for Aligned Models" {
		t.Errorf("Title = %q, line wrapping not collapsed", p.Title)
	}
	if len(p.Authors) != 2 || p.Authors[0] != "Alice Example" {
		t.Errorf("Authors = %v", p.Authors)
	}
	if p.PDFURL != "http://arxiv.org/pdf/2401.01234v1" {
		t.Errorf("PDFURL = %q", p.PDFURL)
	}
	if p.AbstractURL != "https://arxiv.org/abs/2401.01234v1" {
		t.Errorf("AbstractURL = %q", p.AbstractURL)
	}
	if len(p.SourceCategories) != 2 || p.SourceCategories[0] != "cs.CR" {
		t.Errorf("SourceCategories = %v", p.SourceCategories)
	}
	if p.Published.UTC() != time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC) {
		t.Errorf("Published = %v", p.Published)
	}
	if p.Enriched {
		t.Error("collected paper must start raw")
	}
}

func TestCollect_ServerErrorReturnsEmptyAndError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL)
	client.retryCfg.MaxAttempts = 1

	papers, err := client.Collect(context.Background(), 7, 100)
	if err == nil {
		t.Fatal("expected error from failing API")
	}
	if len(papers) != 0 {
		t.Errorf("got %d papers from a failing API, want 0", len(papers))
	}
}

func TestExtractID(t *testing.T) {
	cases := map[string]string{
		"http://arxiv.org/abs/2401.01234v1": "2401.01234v1",
		"http://arxiv.org/abs/cs/0112017v2": "0112017v2",
		"2401.01234v1":                      "2401.01234v1",
	}
	for in, want := range cases {
		if got := extractID(in); got != want {
			t.Errorf("extractID(%q) = %q, want %q", in, got, want)
		}
	}
}

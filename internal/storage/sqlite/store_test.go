package sqlite

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/redteam-monitor/backend/internal/storage/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "papers.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	return store
}

func rawPaper(id string, published time.Time) models.Paper {
	return models.Paper{
		ID:               id,
		Title:            "Title " + id,
		Summary:          "Abstract " + id,
		Authors:          []string{"Alice Example", "Bob Example"},
		Published:        published,
		Updated:          published,
		SourceCategories: []string{"cs.CR", "cs.LG"},
		PDFURL:           "https://arxiv.org/pdf/" + id,
		AbstractURL:      "https://arxiv.org/abs/" + id,
	}
}

func enrichedPaper(id string, published time.Time, categories []string, score int) models.Paper {
	p := rawPaper(id, published)
	now := time.Now()
	p.BriefOverview = "overview"
	p.TechnicalExplanation = "explanation"
	p.AttackCategories = categories
	p.RelevanceScore = score
	p.Enriched = true
	p.EnrichedAt = &now
	return p
}

func TestUpsert_SameIDUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	published := time.Now().AddDate(0, 0, -1)

	first := rawPaper("2401.00001v1", published)
	if _, err := store.Upsert([]models.Paper{first}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	second := first
	second.Title = "Revised title"
	if _, err := store.Upsert([]models.Paper{second}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("Total = %d, want 1", stats.Total)
	}

	papers, err := store.FindUnenriched(0)
	if err != nil {
		t.Fatalf("FindUnenriched failed: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("got %d papers, want 1", len(papers))
	}
	if papers[0].Title != "Revised title" {
		t.Errorf("Title = %q, want latest payload", papers[0].Title)
	}
}

func TestUpsert_RecollectionPreservesEnrichment(t *testing.T) {
	store := newTestStore(t)
	published := time.Now().AddDate(0, 0, -2)

	enriched := enrichedPaper("2401.00002v1", published, []string{"jailbreaking"}, 9)
	if _, err := store.Upsert([]models.Paper{enriched}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// A fresh collection of the same id arrives raw.
	if _, err := store.Upsert([]models.Paper{rawPaper("2401.00002v1", published)}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	papers, err := store.FindByFilters(nil, "", 0)
	if err != nil {
		t.Fatalf("FindByFilters failed: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("got %d enriched papers, want 1", len(papers))
	}

	p := papers[0]
	if !p.Enriched {
		t.Error("re-collection flipped enriched back to false")
	}
	if p.BriefOverview != "overview" || p.RelevanceScore != 9 {
		t.Errorf("enrichment fields erased by re-collection: overview=%q score=%d",
			p.BriefOverview, p.RelevanceScore)
	}
	if !reflect.DeepEqual(p.AttackCategories, []string{"jailbreaking"}) {
		t.Errorf("AttackCategories = %v, want [jailbreaking]", p.AttackCategories)
	}
}

func TestFindUnenriched_OrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	papers := []models.Paper{
		rawPaper("old", now.AddDate(0, 0, -5)),
		rawPaper("new", now.AddDate(0, 0, -1)),
		rawPaper("mid", now.AddDate(0, 0, -3)),
		enrichedPaper("done", now.AddDate(0, 0, -1), []string{"privacy attacks"}, 6),
	}
	if _, err := store.Upsert(papers); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.FindUnenriched(0)
	if err != nil {
		t.Fatalf("FindUnenriched failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d papers, want 3", len(got))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if got[i].ID != want {
			t.Errorf("papers[%d].ID = %q, want %q", i, got[i].ID, want)
		}
	}

	limited, err := store.FindUnenriched(2)
	if err != nil {
		t.Fatalf("FindUnenriched failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d papers", len(limited))
	}
}

func TestFindByFilters_ExcludesRawRegardlessOfFields(t *testing.T) {
	store := newTestStore(t)
	published := time.Now().AddDate(0, 0, -1)

	// Raw paper with enrichment-ish fields set anyway: must stay invisible.
	sneaky := rawPaper("raw1", published)
	sneaky.AttackCategories = []string{"jailbreaking"}
	sneaky.RelevanceScore = 10
	sneaky.ProcessingError = "model returned prose"

	if _, err := store.Upsert([]models.Paper{sneaky}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	for name, run := range map[string]func() ([]models.Paper, error){
		"no filters":   func() ([]models.Paper, error) { return store.FindByFilters(nil, "", 0) },
		"by category":  func() ([]models.Paper, error) { return store.FindByFilters(nil, "jailbreaking", 0) },
		"by relevance": func() ([]models.Paper, error) { return store.FindByFilters(nil, "", 1) },
	} {
		got, err := run()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != 0 {
			t.Errorf("%s returned %d raw papers, want 0", name, len(got))
		}
	}
}

func TestFindByFilters_RelevanceBoundary(t *testing.T) {
	store := newTestStore(t)
	published := time.Now().AddDate(0, 0, -1)

	if _, err := store.Upsert([]models.Paper{
		enrichedPaper("seven", published, []string{"adversarial examples"}, 7),
		enrichedPaper("eight", published, []string{"adversarial examples"}, 8),
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.FindByFilters(nil, "", 8)
	if err != nil {
		t.Fatalf("FindByFilters failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "eight" {
		t.Errorf("min_relevance=8 returned %v, want only the score-8 paper", ids(got))
	}
}

func TestFindByFilters_CategoryAndDate(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	if _, err := store.Upsert([]models.Paper{
		enrichedPaper("recent-ji", now.AddDate(0, 0, -2), []string{"prompt injection"}, 6),
		enrichedPaper("recent-jb", now.AddDate(0, 0, -3), []string{"jailbreaking"}, 6),
		enrichedPaper("stale-ji", now.AddDate(0, 0, -40), []string{"prompt injection"}, 6),
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cutoff := now.AddDate(0, 0, -7)
	got, err := store.FindByFilters(&cutoff, "prompt injection", 0)
	if err != nil {
		t.Fatalf("FindByFilters failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "recent-ji" {
		t.Errorf("got %v, want only recent-ji", ids(got))
	}
}

func TestDistinctCategories_Union(t *testing.T) {
	store := newTestStore(t)
	published := time.Now().AddDate(0, 0, -1)

	if _, err := store.Upsert([]models.Paper{
		enrichedPaper("p1", published, []string{"A", "B"}, 5),
		enrichedPaper("p2", published, []string{"B", "C"}, 5),
		rawPaper("p3", published),
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.DistinctCategories()
	if err != nil {
		t.Fatalf("DistinctCategories failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("DistinctCategories = %v, want [A B C]", got)
	}
}

func TestStats_EmptyStore(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 || stats.EnrichedCount != 0 || stats.RecentCount != 0 {
		t.Errorf("Stats = %+v, want all zero", stats)
	}
}

func TestStats_Counts(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	if _, err := store.Upsert([]models.Paper{
		rawPaper("recent-raw", now.AddDate(0, 0, -1)),
		enrichedPaper("recent-enriched", now.AddDate(0, 0, -2), []string{"X"}, 5),
		enrichedPaper("old-enriched", now.AddDate(0, 0, -30), []string{"X"}, 5),
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.EnrichedCount != 2 {
		t.Errorf("EnrichedCount = %d, want 2", stats.EnrichedCount)
	}
	if stats.RecentCount != 2 {
		t.Errorf("RecentCount = %d, want 2", stats.RecentCount)
	}
}

func ids(papers []models.Paper) []string {
	out := make([]string, 0, len(papers))
	for _, p := range papers {
		out = append(out, p.ID)
	}
	return out
}

package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redteam-monitor/backend/internal/digest"
	"github.com/redteam-monitor/backend/internal/query"
	"github.com/redteam-monitor/backend/internal/storage/models"
	"github.com/redteam-monitor/backend/internal/storage/sqlite"
	"github.com/redteam-monitor/backend/pkg/config"
)

func newTestRunner(t *testing.T, email config.EmailConfig) (*Runner, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "papers.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	runner := NewRunner(
		store,
		nil,
		nil,
		query.NewFacade(store),
		digest.NewBuilder(),
		digest.NewMailer(email),
		100,
	)
	return runner, store
}

func TestRunProcessing_WithoutGeneratorShortCircuits(t *testing.T) {
	runner, store := newTestRunner(t, config.EmailConfig{})

	published := time.Now().AddDate(0, 0, -1)
	if _, err := store.Upsert([]models.Paper{{
		ID:        "p1",
		Title:     "T",
		Summary:   "S",
		Authors:   []string{"A"},
		Published: published,
		Updated:   published,
	}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	err := runner.RunProcessing(context.Background(), 0)
	if err == nil {
		t.Fatal("expected configuration error without a text generator")
	}

	// Short-circuit means no partial work: the paper stays untouched.
	papers, err := store.FindUnenriched(0)
	if err != nil {
		t.Fatalf("FindUnenriched failed: %v", err)
	}
	if len(papers) != 1 || papers[0].ProcessingError != "" {
		t.Error("short-circuited run still modified records")
	}
}

func TestRunDigest_IncompleteEmailConfigShortCircuits(t *testing.T) {
	runner, _ := newTestRunner(t, config.EmailConfig{SMTPServer: "smtp.example.com"})

	err := runner.RunDigest(context.Background(), 7, 5)
	if err == nil {
		t.Fatal("expected configuration error for incomplete email settings")
	}
	if !strings.Contains(err.Error(), "incomplete") {
		t.Errorf("error = %v, want configuration complaint", err)
	}
}

func TestRunDigest_NoMatchingPapersIsNotAnError(t *testing.T) {
	runner, _ := newTestRunner(t, config.EmailConfig{
		SMTPServer: "smtp.example.com",
		Username:   "u",
		Password:   "p",
		Sender:     "digest@example.com",
		Recipients: []string{"team@example.com"},
	})

	// Empty store: nothing matches, nothing is sent, run succeeds.
	if err := runner.RunDigest(context.Background(), 7, 5); err != nil {
		t.Fatalf("RunDigest failed on empty result set: %v", err)
	}
}

package query

import (
	"time"

	"github.com/redteam-monitor/backend/internal/storage/models"
	"github.com/redteam-monitor/backend/internal/storage/sqlite"
)

// Facade is the shared read side of the store: the digest builder and the
// dashboard handlers use the exact same filter composition. It holds no
// state of its own.
type Facade struct {
	store *sqlite.Store
}

func NewFacade(store *sqlite.Store) *Facade {
	return &Facade{store: store}
}

// Recent returns enriched papers published within the trailing lookback
// window, optionally restricted to one attack category and a minimum
// relevance score. days <= 0 disables the window.
func (f *Facade) Recent(days int, category string, minRelevance int) ([]models.Paper, error) {
	var minPublished *time.Time
	if days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		minPublished = &cutoff
	}

	return f.store.FindByFilters(minPublished, category, minRelevance)
}

// Categories lists every attack category seen on enriched papers.
func (f *Facade) Categories() ([]string, error) {
	return f.store.DistinctCategories()
}

// Stats reports collection totals for the dashboard sidebar.
func (f *Facade) Stats() (sqlite.Stats, error) {
	return f.store.Stats()
}

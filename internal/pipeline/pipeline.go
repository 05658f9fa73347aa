package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redteam-monitor/backend/internal/arxiv"
	"github.com/redteam-monitor/backend/internal/digest"
	"github.com/redteam-monitor/backend/internal/enrich"
	"github.com/redteam-monitor/backend/internal/metrics"
	"github.com/redteam-monitor/backend/internal/query"
	"github.com/redteam-monitor/backend/internal/storage/sqlite"
	"github.com/redteam-monitor/backend/pkg/logger"
)

// Runner orchestrates the three independent runs: collect, process, digest.
// Runs are sequential by construction; the store's per-statement transaction
// is the only concurrency control and re-running any of them is idempotent
// per paper id.
type Runner struct {
	store      *sqlite.Store
	collector  *arxiv.Client
	engine     *enrich.Engine
	facade     *query.Facade
	builder    *digest.Builder
	mailer     *digest.Mailer
	maxResults int
}

func NewRunner(
	store *sqlite.Store,
	collector *arxiv.Client,
	engine *enrich.Engine,
	facade *query.Facade,
	builder *digest.Builder,
	mailer *digest.Mailer,
	maxResults int,
) *Runner {
	return &Runner{
		store:      store,
		collector:  collector,
		engine:     engine,
		facade:     facade,
		builder:    builder,
		mailer:     mailer,
		maxResults: maxResults,
	}
}

// RunCollection fetches recent papers and upserts them. A collector failure
// is logged and surfaced; papers from pages that did succeed are still saved.
func (r *Runner) RunCollection(ctx context.Context, days int) error {
	log := runLogger("collection")
	log.Info("Starting paper collection")
	start := time.Now()

	papers, collectErr := r.collector.Collect(ctx, days, r.maxResults)
	metrics.PapersCollected.Add(float64(len(papers)))

	count, err := r.store.Upsert(papers)
	if err != nil {
		r.finish(log, "collection", start, err)
		return err
	}

	log.Info("Collection complete", zap.Int("saved", count))
	r.finish(log, "collection", start, collectErr)
	return collectErr
}

// RunProcessing enriches unenriched papers and writes the results back,
// failures included so retries stay visible. limit of 0 means no cap.
func (r *Runner) RunProcessing(ctx context.Context, limit int) error {
	log := runLogger("processing")
	log.Info("Starting paper processing")
	start := time.Now()

	if r.engine == nil {
		err := fmt.Errorf("no text generator configured, set an API key")
		r.finish(log, "processing", start, err)
		return err
	}

	papers, err := r.store.FindUnenriched(limit)
	if err != nil {
		r.finish(log, "processing", start, err)
		return err
	}
	log.Info("Found unenriched papers", zap.Int("count", len(papers)))

	processed, err := r.engine.Process(ctx, papers)

	// Persist whatever was worked before reporting a cancellation.
	if len(processed) > 0 {
		count, saveErr := r.store.Upsert(processed)
		if saveErr != nil {
			r.finish(log, "processing", start, saveErr)
			return saveErr
		}
		log.Info("Processing complete", zap.Int("saved", count))
	}

	r.finish(log, "processing", start, err)
	return err
}

// RunDigest builds and emails the weekly digest. Incomplete email
// configuration short-circuits before any store read.
func (r *Runner) RunDigest(ctx context.Context, days, minRelevance int) error {
	log := runLogger("digest")
	log.Info("Generating digest", zap.Int("days", days), zap.Int("min_relevance", minRelevance))
	start := time.Now()

	if err := r.mailer.Validate(); err != nil {
		r.finish(log, "digest", start, err)
		return err
	}

	papers, err := r.facade.Recent(days, "", minRelevance)
	if err != nil {
		r.finish(log, "digest", start, err)
		return err
	}

	html, err := r.builder.Build(papers, days, time.Now())
	if err != nil {
		r.finish(log, "digest", start, err)
		return err
	}
	if html == "" {
		log.Info("No papers matched the digest filters, nothing to send")
		r.finish(log, "digest", start, nil)
		return nil
	}

	if err := r.mailer.Send(ctx, html); err != nil {
		r.finish(log, "digest", start, err)
		return err
	}

	log.Info("Digest sent", zap.Int("papers", len(papers)))
	r.finish(log, "digest", start, nil)
	return nil
}

func runLogger(run string) *zap.Logger {
	return logger.GetLogger().With(
		zap.String("run", run),
		zap.String("run_id", uuid.NewString()),
	)
}

func (r *Runner) finish(log *zap.Logger, run string, start time.Time, err error) {
	metrics.RunDuration.WithLabelValues(run).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		log.Error("Run failed", zap.Error(err))
	}
	metrics.RunTotal.WithLabelValues(run, status).Inc()
}

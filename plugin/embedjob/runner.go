// Package embedjob computes embeddings for bug reports that do not have one
// yet. It runs as a background loop inside the server process: bug creation
// never waits on the embedding provider, similarity results simply lag by at
// most one job cycle.
package embedjob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/snagtrack/snagtrack/ai"
	"github.com/snagtrack/snagtrack/internal/metrics"
	"github.com/snagtrack/snagtrack/store"
)

// providerBatchSize is how many texts are sent to the embedding provider per
// request. Kept well under common provider input limits.
const providerBatchSize = 16

// Store is the persistence surface the runner needs. *store.Store satisfies it.
type Store interface {
	FindBugReportsWithoutEmbedding(ctx context.Context, find *store.FindBugReportsWithoutEmbedding) ([]*store.BugReport, error)
	UpsertBugEmbedding(ctx context.Context, embedding *store.BugEmbedding) (*store.BugEmbedding, error)
}

// Config controls the runner's cadence and throughput.
type Config struct {
	Model         string
	Interval      time.Duration
	BatchSize     int // bugs embedded per cycle
	RatePerSecond int // provider request rate limit
}

func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
}

// Runner scans for bug reports without embeddings and backfills them.
type Runner struct {
	store    Store
	embedder ai.EmbeddingService
	config   Config
	limiter  *rate.Limiter
	metrics  *metrics.Exporter
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(store Store, embedder ai.EmbeddingService, config Config, metrics *metrics.Exporter) *Runner {
	config.normalize()
	return &Runner{
		store:    store,
		embedder: embedder,
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.RatePerSecond), config.RatePerSecond),
		metrics:  metrics,
	}
}

// Run executes cycles until the context is canceled. One cycle runs
// immediately on start so a fresh instance catches up without waiting a full
// interval.
func (r *Runner) Run(ctx context.Context) {
	slog.Info("embedding job started",
		"model", r.config.Model,
		"interval", r.config.Interval,
		"batch_size", r.config.BatchSize)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if n, err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("embedding job stopped")
				return
			}
			slog.Error("embedding job cycle failed", "error", err)
			r.observeRun("error")
		} else {
			if n > 0 {
				slog.Info("embedding job cycle complete", "embedded", n)
			}
			r.observeRun("ok")
		}

		select {
		case <-ctx.Done():
			slog.Info("embedding job stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce embeds up to BatchSize bug reports and returns how many were
// written. Partial progress counts: a provider failure mid-cycle leaves the
// already written embeddings in place and the rest for the next cycle.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	bugs, err := r.store.FindBugReportsWithoutEmbedding(ctx, &store.FindBugReportsWithoutEmbedding{
		Model: r.config.Model,
		Limit: r.config.BatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("find bug reports without embedding: %w", err)
	}
	if len(bugs) == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(bugs); start += providerBatchSize {
		end := start + providerBatchSize
		if end > len(bugs) {
			end = len(bugs)
		}
		batch := bugs[start:end]

		if err := r.limiter.Wait(ctx); err != nil {
			return written, err
		}

		texts := make([]string, len(batch))
		for i, bug := range batch {
			texts[i] = EmbeddingText(bug)
		}
		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed batch of %d: %w", len(batch), err)
		}
		if len(vectors) != len(batch) {
			return written, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(vectors), len(batch))
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for i, bug := range batch {
			g.Go(func() error {
				_, err := r.store.UpsertBugEmbedding(gctx, &store.BugEmbedding{
					BugReportID: bug.ID,
					Model:       r.config.Model,
					Embedding:   vectors[i],
				})
				if err != nil {
					return fmt.Errorf("upsert embedding for bug %d: %w", bug.ID, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return written, err
		}

		written += len(batch)
		if r.metrics != nil {
			r.metrics.EmbeddingsComputed.Add(float64(len(batch)))
		}
	}
	return written, nil
}

func (r *Runner) observeRun(result string) {
	if r.metrics != nil {
		r.metrics.EmbeddingJobRuns.WithLabelValues(result).Inc()
	}
}

// EmbeddingText is the canonical text embedded for a bug report. Title and
// description are combined so that short titles still carry context.
func EmbeddingText(bug *store.BugReport) string {
	if bug.Description == "" {
		return bug.Title
	}
	return strings.TrimSpace(bug.Title + "\n\n" + bug.Description)
}

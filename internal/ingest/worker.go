package ingest

import (
	"context"
	"log/slog"
	"time"
)

// Worker rebuilds the knowledge base on a fixed interval so catalog updates
// eventually reach the index without a restart.
type Worker struct {
	builder  *Builder
	interval time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If interval is <= 0, it defaults to 24h.
func NewWorker(builder *Builder, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Worker{
		builder:  builder,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Run rebuilds periodically until ctx is cancelled. The first rebuild
// happens after one full interval; the initial build is the caller's
// responsibility during warmup.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("scheduled rebuild failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single rebuild.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	return w.builder.Build(ctx)
}

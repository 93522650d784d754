package framework

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// stallCounter counts files that exceeded the stall threshold in one run.
type stallCounter struct {
	mu    sync.Mutex
	count int
}

func (sc *stallCounter) add() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.count++

	return sc.count
}

func (sc *stallCounter) value() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.count
}

// watchStall warns once if the current file is still decoding after the
// configured threshold. Decoding is never interrupted. The returned function
// disarms the timer.
func (r *Runner) watchStall(ctx context.Context, span trace.Span) func() {
	if r.cfg.StallWarning <= 0 {
		return func() {}
	}

	counter := r.stalled

	timer := time.AfterFunc(r.cfg.StallWarning, func() {
		n := counter.add()

		r.logger.WarnContext(ctx, "region file decode is slow",
			slog.Duration("threshold", r.cfg.StallWarning),
			slog.Int("stall_count", n),
		)

		span.AddEvent("container.stall_detected", trace.WithAttributes(
			attribute.Int("stall_count", n),
		))
	})

	return func() { timer.Stop() }
}

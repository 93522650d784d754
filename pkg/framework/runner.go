// Package framework orchestrates decoding of a world's region directory:
// discovery, a bounded worker pool, result aggregation and the snapshot cache.
package framework

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/chunkmap/pkg/observability"
	"github.com/Sumatoshi-tech/chunkmap/pkg/region"
)

// CacheStore persists the decoded records of a source directory.
type CacheStore interface {
	Load(ctx context.Context, sourceDir string) ([]region.ChunkRecord, bool, error)
	Save(ctx context.Context, sourceDir string, records []region.ChunkRecord) (string, error)
}

// FileError is a region file that contributed no records.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Progress is reported once per finished region file.
type Progress struct {
	Done    int
	Total   int
	Records int
	Failed  int
	Path    string
}

// RunStats describes the last Run. Valid after Run returns.
type RunStats struct {
	FromCache    bool
	Containers   int
	Failed       []*FileError
	SlotErrors   int
	Stalled      int
	SnapshotPath string
	Duration     time.Duration
}

// containerResult is the message a worker hands to the aggregator.
type containerResult struct {
	path       string
	records    []region.ChunkRecord
	slotErrors int
	err        *FileError
}

// Runner decodes region directories.
type Runner struct {
	cfg      RunnerConfig
	store    CacheStore
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.ScanMetrics
	progress func(Progress)
	stats    RunStats
	stalled  *stallCounter
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithTracer sets the tracer for run and per-file spans.
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = tracer }
}

// WithMetrics records scan metrics.
func WithMetrics(metrics *observability.ScanMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = metrics }
}

// WithProgress calls fn from the aggregating goroutine after every file.
func WithProgress(fn func(Progress)) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// NewRunner creates a runner. A nil store disables the snapshot cache.
func NewRunner(cfg RunnerConfig, store CacheStore, opts ...RunnerOption) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultRunnerConfig().Workers
	}

	r := &Runner{
		cfg:    cfg,
		store:  store,
		logger: slog.Default(),
		tracer: nooptrace.NewTracerProvider().Tracer("framework"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Stats returns statistics of the last Run.
func (r *Runner) Stats() RunStats {
	return r.stats
}

// Run returns the loaded records of every region file under dir. Unless
// ignoreCache is set, a snapshot recorded for dir is returned without
// decoding. Otherwise files are decoded in parallel, records are appended in
// completion order, and a new snapshot is saved. Failed files are logged and
// contribute nothing. Cancelling ctx stops dispatch and skips the save.
func (r *Runner) Run(ctx context.Context, dir string, ignoreCache bool) ([]region.ChunkRecord, error) {
	start := time.Now()
	r.stats = RunStats{}
	r.stalled = &stallCounter{}

	defer func() { r.stats.Duration = time.Since(start) }()

	ctx, span := r.tracer.Start(ctx, "chunkmap.run", trace.WithAttributes(
		attribute.String("dir", dir),
		attribute.Bool("ignore_cache", ignoreCache),
	))
	defer span.End()

	if r.store != nil && !ignoreCache {
		records, ok, err := r.store.Load(ctx, dir)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())

			return nil, fmt.Errorf("load snapshot: %w", err)
		}

		if r.metrics != nil {
			r.metrics.RecordCacheLookup(ctx, ok)
		}

		if ok {
			r.stats.FromCache = true
			r.logger.InfoContext(ctx, "loaded chunks from cache", "dir", dir, "chunks", len(records))

			return records, nil
		}
	}

	files, err := DiscoverContainers(dir, r.cfg.Order)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	r.logger.InfoContext(ctx, "decoding region files", "dir", dir, "files", len(files), "workers", r.cfg.Workers)

	records := r.decodeAll(ctx, files)
	r.stats.Stalled = r.stalled.value()

	err = ctx.Err()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("chunks", len(records)), attribute.Int("failed", len(r.stats.Failed)))

	if r.store != nil {
		path, saveErr := r.store.Save(ctx, dir, records)
		if saveErr != nil {
			span.SetStatus(codes.Error, saveErr.Error())

			return nil, fmt.Errorf("save snapshot: %w", saveErr)
		}

		r.stats.SnapshotPath = path
	}

	return records, nil
}

// decodeAll fans files out to the pool and aggregates results as they arrive.
func (r *Runner) decodeAll(ctx context.Context, files []string) []region.ChunkRecord {
	results := make(chan containerResult)

	go func() {
		defer close(results)

		var group errgroup.Group

		group.SetLimit(r.cfg.Workers)

		for _, path := range files {
			if ctx.Err() != nil {
				break
			}

			group.Go(func() error {
				results <- r.decodeContainer(ctx, path)

				return nil
			})
		}

		_ = group.Wait()
	}()

	var records []region.ChunkRecord

	done := 0

	for res := range results {
		done++
		r.stats.Containers++
		r.stats.SlotErrors += res.slotErrors

		if res.err != nil {
			r.stats.Failed = append(r.stats.Failed, res.err)
			r.logger.WarnContext(ctx, "region file skipped", "path", res.path, "error", res.err.Err)
		} else {
			records = append(records, res.records...)
		}

		if r.progress != nil {
			r.progress(Progress{
				Done:    done,
				Total:   len(files),
				Records: len(records),
				Failed:  len(r.stats.Failed),
				Path:    res.path,
			})
		}
	}

	return records
}

// decodeContainer decodes one region file. It never fails the pool.
func (r *Runner) decodeContainer(ctx context.Context, path string) containerResult {
	start := time.Now()

	ctx = observability.WithLogAttrs(ctx, slog.String("container", path))

	ctx, span := r.tracer.Start(ctx, "chunkmap.container.decode",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	stop := r.watchStall(ctx, span)
	defer stop()

	container, err := region.DecodeFile(path, r.cfg.MaxContainerSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if r.metrics != nil {
			r.metrics.RecordContainer(ctx, observability.StatusError, 0, 0, time.Since(start))
		}

		return containerResult{path: path, err: &FileError{Path: path, Err: err}}
	}

	for _, slotErr := range container.SlotErrors {
		r.logger.DebugContext(ctx, "chunk skipped", "slot", slotErr.Index, "error", slotErr.Err)
	}

	loaded := container.Loaded()

	span.SetAttributes(attribute.Int("chunks", len(loaded)), attribute.Int("slot_errors", len(container.SlotErrors)))

	if r.metrics != nil {
		r.metrics.RecordContainer(ctx, observability.StatusOK, len(loaded), len(container.SlotErrors), time.Since(start))
	}

	return containerResult{path: path, records: loaded, slotErrors: len(container.SlotErrors)}
}

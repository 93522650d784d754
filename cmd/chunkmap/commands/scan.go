package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/chunkmap/pkg/config"
	"github.com/Sumatoshi-tech/chunkmap/pkg/framework"
	"github.com/Sumatoshi-tech/chunkmap/pkg/observability"
	"github.com/Sumatoshi-tech/chunkmap/pkg/region"
	"github.com/Sumatoshi-tech/chunkmap/pkg/snapshot"
)

// Output formats of the scan command.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// ScanCommand holds the flags of the scan command.
type ScanCommand struct {
	configFlag

	workers     int
	ignoreCache bool
	noCache     bool
	cacheDir    string
	compress    bool
	order       string
	format      string
	silent      bool
	noColor     bool
	cpuprofile  string
	heapprofile string
}

// NewScanCommand creates the scan command.
func NewScanCommand() *cobra.Command {
	sc := &ScanCommand{}

	cmd := &cobra.Command{
		Use:   "scan <region-dir>",
		Short: "Decode a world's region files",
		Long: `Decode every region file under a directory and report the loaded chunks.

A snapshot of the decoded chunks is kept in the cache directory; later scans of
the same directory load it instead of decoding again unless --ignore-cache is set.`,
		Args: cobra.ExactArgs(1),
		RunE: sc.run,
	}

	sc.register(cmd)

	cmd.Flags().IntVarP(&sc.workers, "workers", "w", 0, "Number of parallel workers (0 = config or CPU count)")
	cmd.Flags().BoolVar(&sc.ignoreCache, "ignore-cache", false, "Decode even if a snapshot exists")
	cmd.Flags().BoolVar(&sc.noCache, "no-cache", false, "Neither read nor write snapshots")
	cmd.Flags().StringVar(&sc.cacheDir, "cache-dir", "", "Snapshot directory (default: config or ./cache next to the binary)")
	cmd.Flags().BoolVar(&sc.compress, "compress", false, "Write LZ4-compressed snapshots")
	cmd.Flags().StringVar(&sc.order, "order", "", "Dispatch order: origin or name (default: config)")
	cmd.Flags().StringVarP(&sc.format, "format", "f", FormatTable, "Output format: table or json")
	cmd.Flags().BoolVar(&sc.silent, "silent", false, "Disable progress output")
	cmd.Flags().BoolVar(&sc.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&sc.cpuprofile, "cpuprofile", "", "Write CPU profile to file")
	cmd.Flags().StringVar(&sc.heapprofile, "heapprofile", "", "Write heap profile to file")

	return cmd
}

func (sc *ScanCommand) run(cmd *cobra.Command, args []string) error {
	if sc.format != FormatTable && sc.format != FormatJSON {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, sc.format)
	}

	cfg, err := sc.load()
	if err != nil {
		return err
	}

	sc.applyFlags(cfg, cmd.Flags().Changed("workers"))

	providers, err := initTelemetry(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	defer func() { _ = providers.Shutdown(context.WithoutCancel(cmd.Context())) }()

	logger := providers.Logger

	stopMetrics, err := serveMetrics(cfg.Observability.MetricsAddr, providers.MetricsHandler, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	stopProfile, err := framework.MaybeStartCPUProfile(sc.cpuprofile)
	if err != nil {
		return err
	}
	defer stopProfile()

	defer framework.MaybeWriteHeapProfile(sc.heapprofile, logger)

	runnerCfg, err := framework.BuildConfigFromParams(framework.ConfigParams{
		Workers:          cfg.Scan.Workers,
		MaxContainerSize: cfg.Scan.MaxContainerSize,
		Order:            cfg.Scan.Order,
		StallWarning:     cfg.Scan.StallWarningDuration(),
	})
	if err != nil {
		return err
	}

	metrics, err := observability.NewScanMetrics(providers.Meter)
	if err != nil {
		return err
	}

	opts := []framework.RunnerOption{
		framework.WithLogger(logger),
		framework.WithTracer(providers.Tracer),
		framework.WithMetrics(metrics),
	}

	if !sc.silent {
		opts = append(opts, framework.WithProgress(progressPrinter(cmd.ErrOrStderr())))
	}

	var store framework.CacheStore

	if cfg.Cache.Enabled {
		dir, dirErr := cacheDir(cfg)
		if dirErr != nil {
			return dirErr
		}

		store = snapshot.NewStore(dir,
			snapshot.WithCompression(cfg.Cache.Compress),
			snapshot.WithLogger(logger),
			snapshot.WithTracer(providers.Tracer),
		)
	}

	source := args[0]
	runner := framework.NewRunner(runnerCfg, store, opts...)

	records, err := runner.Run(cmd.Context(), source, sc.ignoreCache)
	if err != nil {
		return err
	}

	stats := runner.Stats()

	if !sc.silent && !stats.FromCache && stats.Containers > 0 {
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	if sc.format == FormatJSON {
		if records == nil {
			records = []region.ChunkRecord{}
		}

		return writeJSON(cmd.OutOrStdout(), snapshot.Snapshot{RegionFolderPath: source, Chunks: records})
	}

	renderScan(cmd.OutOrStdout(), newPalette(sc.noColor), source, framework.Summarize(records), stats)

	return nil
}

// applyFlags lets explicitly set flags override the loaded config. An explicit
// worker count is passed through as given so it is validated like the config value.
func (sc *ScanCommand) applyFlags(cfg *config.Config, workersSet bool) {
	if workersSet {
		cfg.Scan.Workers = sc.workers
	}

	if sc.order != "" {
		cfg.Scan.Order = sc.order
	}

	if sc.cacheDir != "" {
		cfg.Cache.Directory = sc.cacheDir
	}

	if sc.compress {
		cfg.Cache.Compress = true
	}

	if sc.noCache {
		cfg.Cache.Enabled = false
	}
}

func progressPrinter(w io.Writer) func(framework.Progress) {
	return func(p framework.Progress) {
		fmt.Fprintf(w, "\rdecoded %d/%d region files, %s chunks (%d failed): %s",
			p.Done, p.Total, humanize.Comma(int64(p.Records)), p.Failed, filepath.Base(p.Path))
	}
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return nil
}

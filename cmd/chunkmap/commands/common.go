// Package commands implements CLI command handlers for chunkmap.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/chunkmap/pkg/config"
	"github.com/Sumatoshi-tech/chunkmap/pkg/observability"
	"github.com/Sumatoshi-tech/chunkmap/pkg/snapshot"
	"github.com/Sumatoshi-tech/chunkmap/pkg/version"
)

const metricsShutdownTimeout = 2 * time.Second

// configFlag is the path flag shared by every command that reads configuration.
type configFlag struct {
	path string
}

func (cf *configFlag) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&cf.path, "config", "c", "", "Config file (default: .chunkmap.yaml in . or $HOME)")
}

func (cf *configFlag) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(cf.path)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// cacheDir resolves the snapshot directory from config.
func cacheDir(cfg *config.Config) (string, error) {
	if cfg.Cache.Directory != "" {
		return cfg.Cache.Directory, nil
	}

	return snapshot.DefaultDir()
}

// initTelemetry builds providers from config; logs go to logOut.
func initTelemetry(cfg *config.Config, logOut io.Writer) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.Prometheus = cfg.Observability.MetricsAddr != ""
	obsCfg.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.JSON
	obsCfg.LogWriter = logOut

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("init observability: %w", err)
	}

	return providers, nil
}

// serveMetrics exposes handler on addr until the returned stop is called.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	if addr == "" || handler == nil {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		serveErr := server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", serveErr)
		}
	}()

	logger.Info("serving metrics", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		_ = server.Shutdown(ctx)
	}, nil
}

// palette holds the colors of terminal output. Colors are disabled per
// instance so commands never touch the package-wide color switch.
type palette struct {
	title *color.Color
	good  *color.Color
	warn  *color.Color
	bad   *color.Color
	faint *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		title: color.New(color.Bold, color.FgCyan),
		good:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		bad:   color.New(color.FgRed),
		faint: color.New(color.Faint),
	}

	if noColor {
		for _, c := range []*color.Color{p.title, p.good, p.warn, p.bad, p.faint} {
			c.DisableColor()
		}
	}

	return p
}

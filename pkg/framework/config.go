package framework

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/chunkmap/pkg/safeconv"
)

// Sentinel errors for configuration.
var (
	ErrInvalidSizeFormat = errors.New("invalid size format")
	ErrInvalidWorkers    = errors.New("invalid worker count")
	ErrInvalidOrder      = errors.New("invalid dispatch order")
)

const (
	// DefaultMaxContainerSize rejects region files above 1 GiB.
	DefaultMaxContainerSize = 1 << 30

	// DefaultStallWarning is how long one region file may take before a warning is logged.
	DefaultStallWarning = 30 * time.Second
)

// Order selects the dispatch order of region files.
type Order string

const (
	// OrderOrigin dispatches regions nearest to the world origin first.
	OrderOrigin Order = "origin"
	// OrderName dispatches regions in lexical path order.
	OrderName Order = "name"
)

// ParseOrder validates an order name. Empty selects OrderOrigin.
func ParseOrder(name string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(name))) {
	case "", OrderOrigin:
		return OrderOrigin, nil
	case OrderName:
		return OrderName, nil
	default:
		return "", fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidOrder, name, OrderOrigin, OrderName)
	}
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Workers is the number of region files decoded in parallel.
	Workers int

	// MaxContainerSize rejects larger region files. Zero disables the limit.
	MaxContainerSize int64

	// Order is the dispatch order of region files.
	Order Order

	// StallWarning logs a warning when one file takes longer. Zero disables it.
	StallWarning time.Duration
}

// DefaultRunnerConfig returns one worker per CPU and the default limits.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:          runtime.NumCPU(),
		MaxContainerSize: DefaultMaxContainerSize,
		Order:            OrderOrigin,
		StallWarning:     DefaultStallWarning,
	}
}

// ConfigParams holds raw parameter values for building a RunnerConfig.
// Size strings use humanize format (e.g. "256MB", "1GiB").
type ConfigParams struct {
	Workers          int
	MaxContainerSize string
	Order            string
	StallWarning     time.Duration
}

// BuildConfigFromParams builds a RunnerConfig from raw parameters. Zero
// values keep the defaults.
func BuildConfigFromParams(params ConfigParams) (RunnerConfig, error) {
	config := DefaultRunnerConfig()

	if params.Workers < 0 {
		return config, fmt.Errorf("%w: %d", ErrInvalidWorkers, params.Workers)
	}

	if params.Workers > 0 {
		config.Workers = params.Workers
	}

	if trimmed := strings.TrimSpace(params.MaxContainerSize); trimmed != "" {
		size, parseErr := humanize.ParseBytes(trimmed)
		if parseErr != nil {
			return config, fmt.Errorf("%w for max-container-size: %s", ErrInvalidSizeFormat, params.MaxContainerSize)
		}

		config.MaxContainerSize = safeconv.ClampToInt64(size)
	}

	order, err := ParseOrder(params.Order)
	if err != nil {
		return config, err
	}

	config.Order = order

	if params.StallWarning > 0 {
		config.StallWarning = params.StallWarning
	}

	return config, nil
}

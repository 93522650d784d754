package framework_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/chunkmap/pkg/framework"
)

func TestBuildConfigFromParams_Defaults(t *testing.T) {
	t.Parallel()

	config, err := framework.BuildConfigFromParams(framework.ConfigParams{})
	require.NoError(t, err)

	assert.Equal(t, framework.DefaultRunnerConfig(), config)
	assert.Equal(t, runtime.NumCPU(), config.Workers)
	assert.Equal(t, int64(framework.DefaultMaxContainerSize), config.MaxContainerSize)
	assert.Equal(t, framework.OrderOrigin, config.Order)
}

func TestBuildConfigFromParams_Overrides(t *testing.T) {
	t.Parallel()

	config, err := framework.BuildConfigFromParams(framework.ConfigParams{
		Workers:          3,
		MaxContainerSize: "256MiB",
		Order:            "name",
		StallWarning:     time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, config.Workers)
	assert.Equal(t, int64(256*1024*1024), config.MaxContainerSize)
	assert.Equal(t, framework.OrderName, config.Order)
	assert.Equal(t, time.Minute, config.StallWarning)
}

func TestBuildConfigFromParams_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params framework.ConfigParams
		want   error
	}{
		{name: "negative_workers", params: framework.ConfigParams{Workers: -1}, want: framework.ErrInvalidWorkers},
		{name: "bad_size", params: framework.ConfigParams{MaxContainerSize: "lots"}, want: framework.ErrInvalidSizeFormat},
		{name: "bad_order", params: framework.ConfigParams{Order: "random"}, want: framework.ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := framework.BuildConfigFromParams(tt.params)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseOrder(t *testing.T) {
	t.Parallel()

	order, err := framework.ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, framework.OrderOrigin, order)

	order, err = framework.ParseOrder(" Name ")
	require.NoError(t, err)
	assert.Equal(t, framework.OrderName, order)
}

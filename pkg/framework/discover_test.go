package framework_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/chunkmap/internal/worldtest"
	"github.com/Sumatoshi-tech/chunkmap/pkg/framework"
)

func touchRegions(t *testing.T, dir string, names ...string) {
	t.Helper()

	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		worldtest.WriteRegion(t, filepath.Dir(path), filepath.Base(path))
	}
}

func relative(t *testing.T, dir string, paths []string) []string {
	t.Helper()

	out := make([]string, 0, len(paths))

	for _, path := range paths {
		rel, err := filepath.Rel(dir, path)
		require.NoError(t, err)

		out = append(out, filepath.ToSlash(rel))
	}

	return out
}

func TestDiscoverContainers_OriginOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touchRegions(t, dir, "r.3.0.mca", "r.0.0.mca", "r.-1.1.mca", "DIM-1/r.0.-1.mca", "backup.mca", "r.5.5.mcr")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "level.dat"), []byte("x"), 0o600))

	files, err := framework.DiscoverContainers(dir, framework.OrderOrigin)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"r.0.0.mca",
		"DIM-1/r.0.-1.mca",
		"r.-1.1.mca",
		"r.3.0.mca",
		"backup.mca",
	}, relative(t, dir, files))
}

func TestDiscoverContainers_NameOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touchRegions(t, dir, "r.3.0.mca", "r.0.0.mca", "a/r.9.9.mca")

	files, err := framework.DiscoverContainers(dir, framework.OrderName)
	require.NoError(t, err)

	assert.Equal(t, []string{"a/r.9.9.mca", "r.0.0.mca", "r.3.0.mca"}, relative(t, dir, files))
}

func TestDiscoverContainers_SourceErrors(t *testing.T) {
	t.Parallel()

	_, err := framework.DiscoverContainers(filepath.Join(t.TempDir(), "missing"), framework.OrderName)
	require.ErrorIs(t, err, framework.ErrSourceDir)

	file := filepath.Join(t.TempDir(), "r.0.0.mca")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err = framework.DiscoverContainers(file, framework.OrderName)
	require.ErrorIs(t, err, framework.ErrSourceDir)
}

func TestDiscoverContainers_Empty(t *testing.T) {
	t.Parallel()

	files, err := framework.DiscoverContainers(t.TempDir(), framework.OrderOrigin)
	require.NoError(t, err)
	assert.Empty(t, files)
}

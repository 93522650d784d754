package commands_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/chunkmap/cmd/chunkmap/commands"
	"github.com/Sumatoshi-tech/chunkmap/internal/worldtest"
	"github.com/Sumatoshi-tech/chunkmap/pkg/framework"
	"github.com/Sumatoshi-tech/chunkmap/pkg/snapshot"
)

type fixture struct {
	world    string
	cacheDir string
	config   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	root := t.TempDir()
	world := filepath.Join(root, "world", "region")
	cacheDir := filepath.Join(root, "cache")

	worldtest.WriteRegion(t, world, "r.0.0.mca",
		worldtest.Slot{Index: 0, Timestamp: 1700000000, Document: worldtest.Chunk{
			X: 0, Z: 0, Sections: [][]string{{"minecraft:plains"}},
		}.NBT()},
		worldtest.Slot{Index: 1, Timestamp: 1700000001, Document: worldtest.Chunk{
			X: 1, Z: 0, Sections: [][]string{{"minecraft:forest", "minecraft:forest", "minecraft:river"}},
		}.NBT()},
	)

	configPath := filepath.Join(root, "chunkmap.yaml")
	content := "scan:\n  workers: 2\ncache:\n  directory: " + cacheDir + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return fixture{world: world, cacheDir: cacheDir, config: configPath}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := commands.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

func TestScan_Table(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	out, _, err := execute(t, "scan", fx.world, "--config", fx.config, "--silent", "--no-color")
	require.NoError(t, err)

	assert.Contains(t, out, "Region directory: "+fx.world)
	assert.Contains(t, out, "Decoded 1 region files")
	assert.Contains(t, out, "2 loaded chunks")
	assert.Contains(t, out, "x 0..1, z 0..0 (2 x 1 chunks)")
	assert.Contains(t, out, "minecraft:plains")
	assert.Contains(t, out, "minecraft:forest")
	assert.Contains(t, out, "50.0%")
	assert.NotContains(t, out, "minecraft:river")
}

func TestScan_JSON(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	out, _, err := execute(t, "scan", fx.world, "--config", fx.config, "--silent", "--format", "json")
	require.NoError(t, err)

	var doc snapshot.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	assert.Equal(t, fx.world, doc.RegionFolderPath)
	require.Len(t, doc.Chunks, 2)

	biomes := map[string]bool{}
	for _, rec := range doc.Chunks {
		assert.True(t, rec.IsLoaded)
		biomes[rec.Biome] = true
	}

	assert.Equal(t, map[string]bool{"minecraft:plains": true, "minecraft:forest": true}, biomes)
}

func TestScan_JSONWithoutLoadedChunks(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	empty := filepath.Join(filepath.Dir(fx.config), "empty", "region")
	worldtest.WriteRegion(t, empty, "r.0.0.mca")

	out, _, err := execute(t, "scan", empty, "--config", fx.config, "--silent", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"chunks": []`)

	var doc snapshot.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.NotNil(t, doc.Chunks)
	assert.Empty(t, doc.Chunks)
}

func TestScan_SecondRunUsesCache(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	_, _, err := execute(t, "scan", fx.world, "--config", fx.config, "--silent", "--no-color")
	require.NoError(t, err)

	out, _, err := execute(t, "scan", fx.world, "--config", fx.config, "--silent", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded from cache")
	assert.Contains(t, out, "2 loaded chunks")

	out, _, err = execute(t, "scan", fx.world, "--config", fx.config, "--silent", "--no-color", "--ignore-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "Decoded 1 region files")

	entries, err := os.ReadDir(fx.cacheDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestScan_NoCache(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	_, _, err := execute(t, "scan", fx.world, "--config", fx.config, "--silent", "--no-cache")
	require.NoError(t, err)

	_, statErr := os.Stat(fx.cacheDir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestScan_CompressedSnapshot(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	_, _, err := execute(t, "scan", fx.world, "--config", fx.config, "--silent", "--compress")
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(fx.cacheDir, "*_cache.json.lz4"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestScan_Progress(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	_, errOut, err := execute(t, "scan", fx.world, "--config", fx.config, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, errOut, "decoded 1/1 region files, 2 chunks (0 failed): r.0.0.mca")
}

func TestScan_Errors(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	_, _, err := execute(t, "scan", fx.world, "--config", fx.config, "--format", "xml")
	require.ErrorIs(t, err, commands.ErrUnknownFormat)

	_, _, err = execute(t, "scan", filepath.Join(fx.world, "missing"), "--config", fx.config, "--silent")
	require.ErrorIs(t, err, framework.ErrSourceDir)

	_, _, err = execute(t, "scan", fx.world, "--config", fx.config, "--silent", "--workers=-1")
	require.ErrorIs(t, err, framework.ErrInvalidWorkers)

	_, _, err = execute(t, "scan", fx.world, "--config", fx.config, "--order", "random")
	require.Error(t, err)

	_, _, err = execute(t, "scan", "--config", fx.config)
	require.Error(t, err)
}

func TestCacheList(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	out, _, err := execute(t, "cache", "list", "--config", fx.config, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots")

	_, _, err = execute(t, "scan", fx.world, "--config", fx.config, "--silent")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(fx.cacheDir, "1_cache.json"), []byte("{"), 0o600))

	out, _, err = execute(t, "cache", "list", "--config", fx.config, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache directory: "+fx.cacheDir)
	assert.Contains(t, out, "_cache.json")
	assert.Contains(t, out, fx.world)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "Total: 2 snapshots")
}

func TestConfigCommand(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	out, _, err := execute(t, "config", "--config", fx.config)
	require.NoError(t, err)

	assert.Contains(t, out, "workers: 2")
	assert.Contains(t, out, "stall_warning: 30s")
	assert.Contains(t, out, "directory: "+fx.cacheDir)
	assert.Contains(t, out, "level: error")
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chunkmap ")
	assert.Contains(t, out, "commit:")
}

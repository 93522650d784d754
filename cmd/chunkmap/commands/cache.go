package commands

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/chunkmap/pkg/safeconv"
	"github.com/Sumatoshi-tech/chunkmap/pkg/snapshot"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the snapshot cache",
	}

	cmd.AddCommand(newCacheListCommand())

	return cmd
}

type cacheListCommand struct {
	configFlag

	cacheDir string
	noColor  bool
}

func newCacheListCommand() *cobra.Command {
	cl := &cacheListCommand{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshot files",
		Args:  cobra.NoArgs,
		RunE:  cl.run,
	}

	cl.register(cmd)
	cmd.Flags().StringVar(&cl.cacheDir, "cache-dir", "", "Snapshot directory (default: config or ./cache next to the binary)")
	cmd.Flags().BoolVar(&cl.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (cl *cacheListCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := cl.load()
	if err != nil {
		return err
	}

	if cl.cacheDir != "" {
		cfg.Cache.Directory = cl.cacheDir
	}

	dir, err := cacheDir(cfg)
	if err != nil {
		return err
	}

	entries, err := snapshot.NewStore(dir).List(cmd.Context())
	if err != nil {
		return err
	}

	p := newPalette(cl.noColor)
	out := cmd.OutOrStdout()

	p.title.Fprintf(out, "Cache directory: %s\n", dir)

	if len(entries) == 0 {
		p.faint.Fprintln(out, "No snapshots")

		return nil
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"File", "Source", "Chunks", "Size", "Modified", "Status"})

	for _, entry := range entries {
		status := p.good.Sprint("ok")
		source := entry.RegionFolderPath
		chunks := humanize.Comma(int64(entry.Chunks))

		if entry.Err != nil {
			status = p.bad.Sprint(entry.Err.Error())
			source, chunks = "-", "-"
		}

		tbl.AppendRow(table.Row{
			filepath.Base(entry.Path),
			source,
			chunks,
			humanize.IBytes(safeconv.ClampToUint64(entry.Size)),
			humanize.Time(entry.ModTime),
			status,
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d snapshots", len(entries))})
	fmt.Fprintln(out, tbl.Render())

	return nil
}

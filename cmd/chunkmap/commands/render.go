package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/chunkmap/pkg/framework"
)

const percent = 100

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	return tbl
}

// renderScan writes the human-readable result of a scan.
func renderScan(w io.Writer, p palette, source string, summary framework.Summary, stats framework.RunStats) {
	p.title.Fprintf(w, "Region directory: %s\n", source)

	if stats.FromCache {
		p.faint.Fprintln(w, "Loaded from cache")
	} else {
		fmt.Fprintf(w, "Decoded %d region files in %s\n", stats.Containers, stats.Duration.Round(time.Millisecond))

		if stats.SnapshotPath != "" {
			p.faint.Fprintf(w, "Snapshot: %s\n", stats.SnapshotPath)
		}
	}

	fmt.Fprintln(w)

	if summary.Chunks == 0 {
		p.warn.Fprintln(w, "No loaded chunks")
	} else {
		p.good.Fprintf(w, "%s loaded chunks\n", humanize.Comma(int64(summary.Chunks)))
		fmt.Fprintf(w, "Bounds: x %d..%d, z %d..%d (%d x %d chunks)\n",
			summary.MinX, summary.MaxX, summary.MinZ, summary.MaxZ, summary.Width(), summary.Height())
		fmt.Fprintln(w)

		tbl := newTable()
		tbl.AppendHeader(table.Row{"Biome", "Chunks", "Share"})

		for _, bc := range summary.Biomes {
			share := float64(bc.Chunks) * percent / float64(summary.Chunks)
			tbl.AppendRow(table.Row{bc.Biome, humanize.Comma(int64(bc.Chunks)), fmt.Sprintf("%.1f%%", share)})
		}

		tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d biomes", len(summary.Biomes))})
		fmt.Fprintln(w, tbl.Render())
	}

	if stats.SlotErrors > 0 {
		p.faint.Fprintf(w, "%d chunk slots skipped\n", stats.SlotErrors)
	}

	if len(stats.Failed) > 0 {
		fmt.Fprintln(w)
		p.bad.Fprintf(w, "%d region files failed:\n", len(stats.Failed))

		for _, fe := range stats.Failed {
			fmt.Fprintf(w, "  %s\n", fe.Error())
		}
	}

	if stats.Stalled > 0 {
		p.warn.Fprintf(w, "%d region files exceeded the stall threshold\n", stats.Stalled)
	}
}

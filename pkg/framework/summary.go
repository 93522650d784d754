package framework

import (
	"cmp"
	"slices"

	"github.com/Sumatoshi-tech/chunkmap/pkg/region"
)

// BiomeCount is the number of chunks classified as one biome.
type BiomeCount struct {
	Biome  string `json:"biome"`
	Chunks int    `json:"chunks"`
}

// Summary describes the extent and composition of a record set.
type Summary struct {
	Chunks int          `json:"chunks"`
	MinX   int32        `json:"minX"`
	MinZ   int32        `json:"minZ"`
	MaxX   int32        `json:"maxX"`
	MaxZ   int32        `json:"maxZ"`
	Biomes []BiomeCount `json:"biomes"`
}

// Width is the number of chunk columns covered by the bounds.
func (s Summary) Width() int {
	if s.Chunks == 0 {
		return 0
	}

	return int(s.MaxX-s.MinX) + 1
}

// Height is the number of chunk rows covered by the bounds.
func (s Summary) Height() int {
	if s.Chunks == 0 {
		return 0
	}

	return int(s.MaxZ-s.MinZ) + 1
}

// Summarize computes chunk bounds and biome counts over the loaded records.
// Biomes are ordered by descending count, then name.
func Summarize(records []region.ChunkRecord) Summary {
	var summary Summary

	counts := make(map[string]int)

	for idx := range records {
		rec := &records[idx]
		if !rec.IsLoaded {
			continue
		}

		if summary.Chunks == 0 {
			summary.MinX, summary.MaxX = rec.X, rec.X
			summary.MinZ, summary.MaxZ = rec.Z, rec.Z
		}

		summary.Chunks++
		summary.MinX = min(summary.MinX, rec.X)
		summary.MaxX = max(summary.MaxX, rec.X)
		summary.MinZ = min(summary.MinZ, rec.Z)
		summary.MaxZ = max(summary.MaxZ, rec.Z)
		counts[rec.Biome]++
	}

	summary.Biomes = make([]BiomeCount, 0, len(counts))

	for biome, n := range counts {
		summary.Biomes = append(summary.Biomes, BiomeCount{Biome: biome, Chunks: n})
	}

	slices.SortFunc(summary.Biomes, func(a, b BiomeCount) int {
		if c := cmp.Compare(b.Chunks, a.Chunks); c != 0 {
			return c
		}

		return cmp.Compare(a.Biome, b.Biome)
	})

	return summary
}

package region_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/chunkmap/internal/worldtest"
	"github.com/Sumatoshi-tech/chunkmap/pkg/nbtscan"
	"github.com/Sumatoshi-tech/chunkmap/pkg/region"
)

func fullChunk(x, z int32, biomes ...string) []byte {
	return worldtest.Chunk{X: x, Z: z, Sections: [][]string{biomes}}.NBT()
}

func TestDecode_ProducesEverySlot(t *testing.T) {
	t.Parallel()

	data := worldtest.Region(t,
		worldtest.Slot{Index: 0, Timestamp: 1700000000, Document: fullChunk(0, 0, "minecraft:plains")},
		worldtest.Slot{Index: 33, Timestamp: 1700000500, Document: fullChunk(1, 1, "minecraft:forest", "minecraft:forest", "minecraft:river")},
		worldtest.Slot{Index: 1023, Timestamp: 1700000900, Document: fullChunk(31, 31, "minecraft:river", "minecraft:beach")},
	)

	c, err := region.Decode(data)
	require.NoError(t, err)

	assert.Len(t, c.Records, region.SlotCount)
	assert.Empty(t, c.SlotErrors)

	loaded := c.Loaded()
	require.Len(t, loaded, 3)

	assert.Equal(t, int32(0), loaded[0].X)
	assert.Equal(t, "minecraft:plains", loaded[0].Biome)
	assert.Equal(t, uint32(1700000000), loaded[0].Timestamp)
	assert.Equal(t, uint32(2), loaded[0].DataOffset)

	assert.Equal(t, int32(1), loaded[1].X)
	assert.Equal(t, int32(1), loaded[1].Z)
	assert.Equal(t, "minecraft:forest", loaded[1].Biome)

	assert.Equal(t, "minecraft:river", loaded[2].Biome)
	assert.Equal(t, uint32(1700000900), c.Records[1023].Timestamp)

	for idx, rec := range c.Records {
		if idx == 0 || idx == 33 || idx == 1023 {
			continue
		}

		assert.Zero(t, rec.DataOffset)
		assert.False(t, rec.IsLoaded)
	}
}

func TestDecode_LocationSectorCountIsKept(t *testing.T) {
	t.Parallel()

	data := worldtest.Region(t, worldtest.Slot{Index: 5, Document: fullChunk(5, 0, "minecraft:plains")})

	c, err := region.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, region.Location{Offset: 2, Sectors: 1}, c.Locations[5])
	assert.True(t, c.Locations[4].Empty())
}

func TestDecode_EmptyRegion(t *testing.T) {
	t.Parallel()

	c, err := region.Decode(worldtest.Region(t))
	require.NoError(t, err)

	assert.Len(t, c.Records, region.SlotCount)
	assert.Empty(t, c.Loaded())
}

func TestDecode_ZeroLengthFile(t *testing.T) {
	t.Parallel()

	c, err := region.Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, c.Loaded())
}

func TestDecode_NotFullIsExcluded(t *testing.T) {
	t.Parallel()

	partial := worldtest.Chunk{Status: "structure_starts", X: 3, Z: 4, Sections: [][]string{{"minecraft:plains"}}}.NBT()

	data := worldtest.Region(t,
		worldtest.Slot{Index: 0, Document: partial},
		worldtest.Slot{Index: 1, Document: fullChunk(1, 0, "minecraft:desert")},
	)

	c, err := region.Decode(data)
	require.NoError(t, err)

	assert.False(t, c.Records[0].IsLoaded)
	assert.NotZero(t, c.Records[0].DataOffset)
	assert.Empty(t, c.Records[0].Biome)

	loaded := c.Loaded()
	require.Len(t, loaded, 1)
	assert.Equal(t, "minecraft:desert", loaded[0].Biome)
}

func TestDecode_MissingFieldIsConfinedToSlot(t *testing.T) {
	t.Parallel()

	data := worldtest.Region(t,
		worldtest.Slot{Index: 7, Document: worldtest.Chunk{OmitSections: true}.NBT()},
		worldtest.Slot{Index: 8, Document: fullChunk(8, 0, "minecraft:taiga")},
	)

	c, err := region.Decode(data)
	require.NoError(t, err)

	require.Len(t, c.SlotErrors, 1)
	assert.Equal(t, 7, c.SlotErrors[0].Index)
	require.ErrorIs(t, c.SlotErrors[0], nbtscan.ErrFieldNotFound)

	assert.False(t, c.Records[7].IsLoaded)
	assert.Len(t, c.Loaded(), 1)
}

func TestDecode_FileFatalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data func(t *testing.T) []byte
		want error
	}{
		{
			name: "missing_compound_marker",
			data: func(t *testing.T) []byte {
				t.Helper()

				doc := fullChunk(0, 0, "minecraft:plains")
				doc[0] = 8

				return worldtest.Region(t,
					worldtest.Slot{Index: 0, Document: fullChunk(1, 1, "minecraft:plains")},
					worldtest.Slot{Index: 1, Document: doc},
				)
			},
			want: region.ErrMalformedContainer,
		},
		{
			name: "corrupt_payload",
			data: func(t *testing.T) []byte {
				t.Helper()

				return worldtest.Region(t, worldtest.Slot{Index: 0, Compressed: []byte("definitely not zlib")})
			},
			want: region.ErrDecompression,
		},
		{
			name: "truncated_payload",
			data: func(t *testing.T) []byte {
				t.Helper()

				compressed := worldtest.Compress(t, fullChunk(0, 0, "minecraft:plains"))

				return worldtest.Region(t, worldtest.Slot{Index: 0, Compressed: compressed[:len(compressed)/2]})
			},
			want: region.ErrDecompression,
		},
		{
			name: "short_header",
			data: func(_ *testing.T) []byte {
				return make([]byte, region.HeaderSize-1)
			},
			want: region.ErrTruncatedContainer,
		},
		{
			name: "offset_past_end",
			data: func(t *testing.T) []byte {
				t.Helper()

				data := worldtest.Region(t)
				data[2] = 9

				return data
			},
			want: region.ErrTruncatedContainer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := region.Decode(tt.data(t))
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, c)
		})
	}
}

func TestDecode_PayloadLengthConventions(t *testing.T) {
	t.Parallel()

	compressed := worldtest.Compress(t, fullChunk(5, -7, "minecraft:desert"))

	tests := []struct {
		name   string
		length uint32
	}{
		{name: "counts_method_byte", length: uint32(len(compressed)) + 1},
		{name: "compressed_size_only", length: uint32(len(compressed))},
		{name: "runs_past_end_of_file", length: 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := worldtest.Region(t, worldtest.Slot{Index: 0, Compressed: compressed})
			binary.BigEndian.PutUint32(data[region.HeaderSize:], tt.length)

			c, err := region.Decode(data)
			require.NoError(t, err)

			loaded := c.Loaded()
			require.Len(t, loaded, 1)
			assert.Equal(t, int32(5), loaded[0].X)
			assert.Equal(t, int32(-7), loaded[0].Z)
			assert.Equal(t, "minecraft:desert", loaded[0].Biome)
		})
	}
}

func TestDecode_ZeroPayloadLengthFailsFile(t *testing.T) {
	t.Parallel()

	data := worldtest.Region(t,
		worldtest.Slot{Index: 0, Document: fullChunk(1, 1, "minecraft:plains")},
		worldtest.Slot{Index: 1, Document: fullChunk(0, 0, "minecraft:plains")},
	)
	// The second payload starts one sector after the first.
	copy(data[region.HeaderSize+region.SectorSize:], []byte{0, 0, 0, 0})

	c, err := region.Decode(data)
	require.ErrorIs(t, err, region.ErrDecompression)
	assert.Nil(t, c)
}

func TestDecodeFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := worldtest.WriteRegion(t, dir, "r.0.0.mca", worldtest.Slot{Index: 2, Document: fullChunk(2, 0, "minecraft:plains")})

	c, err := region.DecodeFile(path, 0)
	require.NoError(t, err)
	assert.Len(t, c.Loaded(), 1)

	_, err = region.DecodeFile(path, region.HeaderSize)
	require.ErrorIs(t, err, region.ErrContainerTooLarge)

	_, err = region.DecodeFile(filepath.Join(dir, "missing.mca"), 0)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		x, z int
		ok   bool
	}{
		{name: "r.0.0.mca", x: 0, z: 0, ok: true},
		{name: "r.-3.12.mca", x: -3, z: 12, ok: true},
		{name: "r.1.mca", ok: false},
		{name: "r.a.b.mca", ok: false},
		{name: "c.0.0.mca", ok: false},
		{name: "r.0.0.mcr", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			x, z, ok := region.ParseFileName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.z, z)
		})
	}
}

// Package region decodes region container files: the 8 KiB location and
// timestamp header and the zlib-compressed chunk payloads it addresses.
package region

import (
	"fmt"
	"strconv"
	"strings"
)

// Region file layout.
const (
	// SlotCount is the number of chunk slots in every region file.
	SlotCount = 1024
	// SectorSize is the addressing unit of payload offsets.
	SectorSize = 4096
	// HeaderSize covers the location table and the timestamp table.
	HeaderSize = 2 * SlotCount * entrySize

	entrySize = 4
)

// FileExtension is the suffix of region files.
const FileExtension = ".mca"

// ChunkRecord is one chunk slot of a region file. X, Z and Biome are only
// meaningful when IsLoaded is set.
type ChunkRecord struct {
	DataOffset uint32 `json:"dataOffset"`
	Biome      string `json:"biome"`
	Timestamp  uint32 `json:"timestamp"`
	IsLoaded   bool   `json:"isLoaded"`
	X          int32  `json:"x"`
	Z          int32  `json:"z"`
}

// Location is a raw location table entry.
type Location struct {
	// Offset is the payload start in sectors; zero marks an empty slot.
	Offset uint32
	// Sectors is the approximate payload size in sectors.
	Sectors uint8
}

// Empty reports whether the slot holds no chunk.
func (l Location) Empty() bool {
	return l.Offset == 0
}

// SlotError is a failure confined to one chunk slot.
type SlotError struct {
	Index int
	Err   error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %d: %v", e.Index, e.Err)
}

func (e *SlotError) Unwrap() error {
	return e.Err
}

// Container is a decoded region file.
type Container struct {
	Locations [SlotCount]Location
	Records   [SlotCount]ChunkRecord
	// SlotErrors lists slots whose document lacked an expected field.
	SlotErrors []*SlotError
}

// Loaded returns the loaded records in slot order.
func (c *Container) Loaded() []ChunkRecord {
	var out []ChunkRecord

	for idx := range c.Records {
		if c.Records[idx].IsLoaded {
			out = append(out, c.Records[idx])
		}
	}

	return out
}

// ParseFileName extracts the region coordinates from an "r.<x>.<z>.mca" name.
func ParseFileName(name string) (x, z int, ok bool) {
	trimmed, found := strings.CutSuffix(name, FileExtension)
	if !found {
		return 0, 0, false
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) != 3 || parts[0] != "r" {
		return 0, 0, false
	}

	x, errX := strconv.Atoi(parts[1])
	z, errZ := strconv.Atoi(parts[2])

	if errX != nil || errZ != nil {
		return 0, 0, false
	}

	return x, z, true
}

// Package nbtscan extracts a fixed set of fields from an uncompressed NBT chunk
// document by searching for tag-name markers instead of building a tree.
//
// Each lookup locates the ASCII name of a tag and applies a fixed offset from
// the end of the name to reach its payload. Top-level fields restart the search
// at the start of the document. The biome palette chain (sections, biomes,
// palette, entries) only ever searches forward from the previous anchor so an
// earlier, unrelated occurrence of a marker is never matched.
//
// A marker that appears by coincidence inside unrelated binary payload produces
// a wrong match. This is an accepted property of the approach.
package nbtscan

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Sentinel errors for field extraction.
var (
	ErrFieldNotFound    = errors.New("field marker not found")
	ErrTruncatedValue   = errors.New("field value runs past end of document")
	ErrNoClassification = errors.New("biome palette is empty")
)

// TagCompound is the NBT tag id every chunk document starts with.
const TagCompound = 10

// StatusFull is the status value of a completely generated chunk.
const StatusFull = "full"

// BiomePrefix is the namespace shared by every biome identifier.
const BiomePrefix = "minecraft:"

// Field names as they appear in error messages.
const (
	FieldStatus   = "Status"
	FieldXPos     = "xPos"
	FieldZPos     = "zPos"
	FieldSections = "sections"
	FieldBiomes   = "biomes"
	FieldPalette  = "palette"
	FieldBiome    = "biome"
)

// Payload sizes in bytes.
const (
	int32Size        = 4
	stringLengthSize = 2
	listTypeSize     = 1
)

var (
	markerStatus   = []byte(FieldStatus)
	markerXPos     = []byte(FieldXPos)
	markerZPos     = []byte(FieldZPos)
	markerSections = []byte(FieldSections)
	markerBiomes   = []byte(FieldBiomes)
	markerPalette  = []byte(FieldPalette)
	markerBiome    = []byte(BiomePrefix)
	statusFull     = []byte(StatusFull)
)

// Fields holds the values extracted from one chunk document.
type Fields struct {
	// Status is the raw status string.
	Status []byte
	// Palette is every biome palette entry of every section, in scan order.
	Palette []string
	// Biome is the most frequent Palette entry.
	Biome string
	X     int32
	Z     int32
}

// Full reports whether the chunk status is exactly "full".
func (f Fields) Full() bool {
	return IsFull(f.Status)
}

// IsFull reports whether a raw status value is exactly "full".
func IsFull(status []byte) bool {
	return bytes.Equal(status, statusFull)
}

// Scan extracts the status of doc and, when the chunk is full, its position and
// dominant biome. A chunk that is not full is returned with only Status set.
func Scan(doc []byte) (Fields, error) {
	status, err := Status(doc)
	if err != nil {
		return Fields{}, err
	}

	fields := Fields{Status: status}
	if !fields.Full() {
		return fields, nil
	}

	fields.X, fields.Z, err = Position(doc)
	if err != nil {
		return Fields{}, err
	}

	fields.Palette, err = BiomePalette(doc)
	if err != nil {
		return Fields{}, err
	}

	biome, ok := Dominant(fields.Palette)
	if !ok {
		return Fields{}, fmt.Errorf("%w: %s", ErrNoClassification, FieldBiome)
	}

	fields.Biome = biome

	return fields, nil
}

// Status returns the raw value of the Status string tag. The search starts
// after the root compound tag byte.
func Status(doc []byte) ([]byte, error) {
	cur := cursor{doc: doc, pos: 1}

	err := cur.skipPast(FieldStatus, markerStatus)
	if err != nil {
		return nil, err
	}

	return cur.readString(FieldStatus)
}

// Position returns the xPos and zPos int tags.
func Position(doc []byte) (x, z int32, err error) {
	x, err = readTopLevelInt(doc, FieldXPos, markerXPos)
	if err != nil {
		return 0, 0, err
	}

	z, err = readTopLevelInt(doc, FieldZPos, markerZPos)
	if err != nil {
		return 0, 0, err
	}

	return x, z, nil
}

// BiomePalette returns every biome palette entry of every section, in scan order.
func BiomePalette(doc []byte) ([]string, error) {
	cur := cursor{doc: doc}

	err := cur.skipPast(FieldSections, markerSections)
	if err != nil {
		return nil, err
	}

	sectionCount, err := cur.readListHeader(FieldSections)
	if err != nil {
		return nil, err
	}

	var palette []string

	for range sectionCount {
		err = cur.seek(FieldBiomes, markerBiomes)
		if err != nil {
			return nil, err
		}

		err = cur.skipPast(FieldPalette, markerPalette)
		if err != nil {
			return nil, err
		}

		entryCount, countErr := cur.readListHeader(FieldPalette)
		if countErr != nil {
			return nil, countErr
		}

		for range entryCount {
			entry, entryErr := cur.readPaletteEntry()
			if entryErr != nil {
				return nil, entryErr
			}

			palette = append(palette, entry)
		}
	}

	return palette, nil
}

// Dominant returns the most frequent value. Ties go to the value encountered
// first. The second result is false when values is empty.
func Dominant(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}

	counts := make(map[string]int, len(values))
	order := make([]string, 0, len(values))

	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}

		counts[v]++
	}

	best := order[0]

	for _, v := range order[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}

	return best, true
}

func readTopLevelInt(doc []byte, field string, marker []byte) (int32, error) {
	cur := cursor{doc: doc}

	err := cur.skipPast(field, marker)
	if err != nil {
		return 0, err
	}

	return cur.readInt32(field)
}

// cursor is a read position inside a document.
type cursor struct {
	doc []byte
	pos int
}

// seek moves the cursor to the next occurrence of marker at or after the
// current position.
func (c *cursor) seek(field string, marker []byte) error {
	if c.pos > len(c.doc) {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, field)
	}

	idx := bytes.Index(c.doc[c.pos:], marker)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, field)
	}

	c.pos += idx

	return nil
}

// skipPast moves the cursor to the first byte after the next marker.
func (c *cursor) skipPast(field string, marker []byte) error {
	err := c.seek(field, marker)
	if err != nil {
		return err
	}

	c.pos += len(marker)

	return nil
}

func (c *cursor) take(field string, n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.doc) {
		return nil, fmt.Errorf("%w: %s", ErrTruncatedValue, field)
	}

	b := c.doc[c.pos : c.pos+n]
	c.pos += n

	return b, nil
}

func (c *cursor) readInt32(field string) (int32, error) {
	b, err := c.take(field, int32Size)
	if err != nil {
		return 0, err
	}

	return int32(binary.BigEndian.Uint32(b)), nil //nolint:gosec // two's complement reinterpretation.
}

// readListHeader skips the element type byte of a list tag and returns its
// length. Negative lengths count as empty.
func (c *cursor) readListHeader(field string) (int, error) {
	_, err := c.take(field, listTypeSize)
	if err != nil {
		return 0, err
	}

	n, err := c.readInt32(field)
	if err != nil {
		return 0, err
	}

	return max(int(n), 0), nil
}

func (c *cursor) readString(field string) ([]byte, error) {
	b, err := c.take(field, stringLengthSize)
	if err != nil {
		return nil, err
	}

	return c.take(field, int(binary.BigEndian.Uint16(b)))
}

// readPaletteEntry finds the next biome identifier and reads it through the
// string length that precedes the namespace prefix.
func (c *cursor) readPaletteEntry() (string, error) {
	err := c.seek(FieldBiome, markerBiome)
	if err != nil {
		return "", err
	}

	if c.pos < stringLengthSize {
		return "", fmt.Errorf("%w: %s", ErrTruncatedValue, FieldBiome)
	}

	c.pos -= stringLengthSize

	value, err := c.readString(FieldBiome)
	if err != nil {
		return "", err
	}

	// The length must cover the prefix it was found through, otherwise the
	// cursor would not advance past it.
	if len(value) < len(markerBiome) {
		return "", fmt.Errorf("%w: %s", ErrTruncatedValue, FieldBiome)
	}

	return string(value), nil
}

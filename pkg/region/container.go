package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zlib"

	"github.com/Sumatoshi-tech/chunkmap/pkg/nbtscan"
	"github.com/Sumatoshi-tech/chunkmap/pkg/safeconv"
)

// Sentinel errors that abort decoding of a whole file.
var (
	ErrMalformedContainer = errors.New("chunk document does not start with a compound tag")
	ErrDecompression      = errors.New("chunk payload decompression failed")
	ErrTruncatedContainer = errors.New("region file truncated")
	ErrContainerTooLarge  = errors.New("region file exceeds size limit")
)

// payloadHeaderSize is the length prefix plus the compression method byte.
const payloadHeaderSize = 5

// Decode decodes a region file held in memory. Every slot with a location
// gets its timestamp and offset; a slot is loaded only when its chunk status
// is "full" and all fields were found. Missing fields are recorded in
// SlotErrors. A compression or document-marker failure in any slot fails the
// whole file.
//
// The compression method byte is not inspected: payloads are always zlib.
func Decode(data []byte) (*Container, error) {
	c := &Container{}

	// Zero-length files are pre-allocated regions with no chunks.
	if len(data) == 0 {
		return c, nil
	}

	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncatedContainer, HeaderSize, len(data))
	}

	for idx := range SlotCount {
		entry := binary.BigEndian.Uint32(data[idx*entrySize:])
		c.Locations[idx] = Location{Offset: entry >> 8, Sectors: uint8(entry & 0xff)}
		c.Records[idx].DataOffset = c.Locations[idx].Offset
	}

	for idx := range SlotCount {
		c.Records[idx].Timestamp = binary.BigEndian.Uint32(data[(SlotCount+idx)*entrySize:])
	}

	for idx := range SlotCount {
		if c.Locations[idx].Empty() {
			continue
		}

		err := c.decodeSlot(data, idx)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", idx, err)
		}
	}

	return c, nil
}

// DecodeFile reads and decodes the region file at path. A positive maxSize
// rejects larger files before they are read.
func DecodeFile(path string, maxSize int64) (*Container, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat region file: %w", err)
	}

	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s > %s", ErrContainerTooLarge,
			humanize.IBytes(safeconv.ClampToUint64(info.Size())), humanize.IBytes(safeconv.ClampToUint64(maxSize)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region file: %w", err)
	}

	return Decode(data)
}

func (c *Container) decodeSlot(data []byte, idx int) error {
	sector := c.Locations[idx].Offset
	if int64(sector)*SectorSize+payloadHeaderSize > int64(len(data)) {
		return fmt.Errorf("%w: sector %d beyond end of file", ErrTruncatedContainer, sector)
	}

	doc, err := inflate(payload(data, sector))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecompression, err)
	}

	if len(doc) == 0 || doc[0] != nbtscan.TagCompound {
		return ErrMalformedContainer
	}

	fields, err := nbtscan.Scan(doc)
	if err != nil {
		c.SlotErrors = append(c.SlotErrors, &SlotError{Index: idx, Err: err})

		return nil
	}

	if !fields.Full() {
		return nil
	}

	rec := &c.Records[idx]
	rec.IsLoaded = true
	rec.X = fields.X
	rec.Z = fields.Z
	rec.Biome = fields.Biome

	return nil
}

// payload returns the bytes following the method byte of the chunk at the
// given sector, up to the stored length or the end of the file. Writers differ
// on whether the length counts the method byte; the zlib reader stops at the
// end of its stream, so both layouts decode. A zero length yields an empty
// payload, which fails to inflate.
func payload(data []byte, sector uint32) []byte {
	start := int64(sector) * SectorSize
	size := int64(len(data))

	length := int64(binary.BigEndian.Uint32(data[start:]))
	end := min(start+payloadHeaderSize+length, size)

	return data[start+payloadHeaderSize : end]
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open zlib stream: %w", err)
	}
	defer zr.Close()

	doc, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read zlib stream: %w", err)
	}

	return doc, nil
}

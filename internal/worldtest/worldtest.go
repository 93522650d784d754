// Package worldtest builds synthetic chunk documents and region files for tests.
package worldtest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// NBT tag ids used by the builders.
const (
	tagEnd      = 0
	tagByte     = 1
	tagInt      = 3
	tagLong     = 4
	tagString   = 8
	tagList     = 9
	tagCompound = 10
	tagLongArr  = 12
)

// Region file layout.
const (
	SlotCount  = 1024
	SectorSize = 4096
	headerSize = 2 * SlotCount * 4

	compressionZlib = 2
)

// Chunk describes a synthetic chunk document.
type Chunk struct {
	// Status defaults to "full" when empty.
	Status string
	X      int32
	Z      int32
	// Sections holds the biome palette of each section.
	Sections [][]string
	// OmitStatus drops the Status tag.
	OmitStatus bool
	// OmitSections drops the sections list.
	OmitSections bool
}

// NBT encodes the chunk as an uncompressed NBT document, laid out like a
// region chunk: block states precede biomes in every section.
func (c Chunk) NBT() []byte {
	var buf bytes.Buffer

	w := nbtWriter{&buf}

	w.header(tagCompound, "")
	w.intTag("DataVersion", 3465)
	w.intTag("xPos", c.X)
	w.intTag("yPos", -4)
	w.intTag("zPos", c.Z)
	w.longTag("LastUpdate", 123456)

	if !c.OmitStatus {
		status := c.Status
		if status == "" {
			status = "full"
		}

		w.stringTag("Status", status)
	}

	if !c.OmitSections {
		w.header(tagList, "sections")
		w.byte(tagCompound)
		w.int32(int32(len(c.Sections)))

		for idx, biomes := range c.Sections {
			w.byteTag("Y", int8(idx-4))

			w.header(tagCompound, "block_states")
			w.header(tagList, "palette")
			w.byte(tagCompound)
			w.int32(1)
			w.stringTag("Name", "minecraft:stone")
			w.byte(tagEnd)
			w.byte(tagEnd)

			w.header(tagCompound, "biomes")
			w.header(tagList, "palette")
			w.byte(tagString)
			w.int32(int32(len(biomes)))

			for _, b := range biomes {
				w.string(b)
			}

			w.header(tagLongArr, "data")
			w.int32(1)
			w.int64(0)
			w.byte(tagEnd)

			w.byte(tagEnd)
		}
	}

	w.header(tagList, "block_entities")
	w.byte(tagEnd)
	w.int32(0)

	w.byte(tagEnd)

	return buf.Bytes()
}

// Slot is one populated chunk slot of a region file.
type Slot struct {
	Index     int
	Timestamp uint32
	// Document is zlib-compressed into the payload.
	Document []byte
	// Compressed, when set, is written as the payload verbatim.
	Compressed []byte
}

// Compress zlib-compresses data.
func Compress(tb testing.TB, data []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer

	zw := zlib.NewWriter(&buf)

	_, err := zw.Write(data)
	if err != nil {
		tb.Fatalf("zlib write: %v", err)
	}

	err = zw.Close()
	if err != nil {
		tb.Fatalf("zlib close: %v", err)
	}

	return buf.Bytes()
}

// Region lays out a region file holding the given slots. Payloads are placed
// in consecutive sectors after the 8 KiB header.
func Region(tb testing.TB, slots ...Slot) []byte {
	tb.Helper()

	out := make([]byte, headerSize)
	sector := headerSize / SectorSize

	for _, s := range slots {
		payload := s.Compressed
		if payload == nil {
			payload = Compress(tb, s.Document)
		}

		var chunk bytes.Buffer

		_ = binary.Write(&chunk, binary.BigEndian, uint32(len(payload)+1))
		chunk.WriteByte(compressionZlib)
		chunk.Write(payload)

		sectors := (chunk.Len() + SectorSize - 1) / SectorSize
		padded := make([]byte, sectors*SectorSize)
		copy(padded, chunk.Bytes())

		binary.BigEndian.PutUint32(out[s.Index*4:], uint32(sector)<<8|uint32(sectors&0xff))
		binary.BigEndian.PutUint32(out[SlotCount*4+s.Index*4:], s.Timestamp)

		out = append(out, padded...)
		sector += sectors
	}

	return out
}

// WriteRegion writes a region file to dir/name and returns its path.
func WriteRegion(tb testing.TB, dir, name string, slots ...Slot) string {
	tb.Helper()

	path := filepath.Join(dir, name)

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		tb.Fatalf("mkdir: %v", err)
	}

	err = os.WriteFile(path, Region(tb, slots...), 0o600)
	if err != nil {
		tb.Fatalf("write region: %v", err)
	}

	return path
}

type nbtWriter struct {
	buf *bytes.Buffer
}

func (w nbtWriter) byte(b byte) { w.buf.WriteByte(b) }

func (w nbtWriter) int32(v int32) { _ = binary.Write(w.buf, binary.BigEndian, v) }

func (w nbtWriter) int64(v int64) { _ = binary.Write(w.buf, binary.BigEndian, v) }

func (w nbtWriter) string(s string) {
	_ = binary.Write(w.buf, binary.BigEndian, uint16(len(s)))
	w.buf.WriteString(s)
}

func (w nbtWriter) header(tag byte, name string) {
	w.byte(tag)
	w.string(name)
}

func (w nbtWriter) byteTag(name string, v int8) {
	w.header(tagByte, name)
	w.byte(byte(v))
}

func (w nbtWriter) intTag(name string, v int32) {
	w.header(tagInt, name)
	w.int32(v)
}

func (w nbtWriter) longTag(name string, v int64) {
	w.header(tagLong, name)
	w.int64(v)
}

func (w nbtWriter) stringTag(name, v string) {
	w.header(tagString, name)
	w.string(v)
}

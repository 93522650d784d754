// Package snapshot stores decoded chunk records per source directory so an
// unchanged world does not have to be decoded again.
package snapshot

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/chunkmap/pkg/persist"
	"github.com/Sumatoshi-tech/chunkmap/pkg/region"
)

// Sentinel errors.
var (
	// ErrCacheDir means the cache directory cannot be created, listed or written.
	ErrCacheDir = errors.New("cache directory unusable")
	// ErrInvalidSnapshot means a snapshot file is empty or does not match the schema.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

const (
	// FileSuffix ends every snapshot basename.
	FileSuffix = "_cache"

	// DirName is the default cache directory name next to the executable.
	DirName = "cache"

	dirPerm = 0o755

	// maxSaveAttempts bounds retries when a time-derived name is taken.
	maxSaveAttempts = 16
)

//go:embed snapshot.schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// Snapshot is the on-disk document.
type Snapshot struct {
	RegionFolderPath string               `json:"regionFolderPath"`
	Chunks           []region.ChunkRecord `json:"chunks"`
}

// Entry describes one snapshot file found in the cache directory.
type Entry struct {
	Path             string
	RegionFolderPath string
	Chunks           int
	Size             int64
	ModTime          time.Time
	// Err is set when the file could not be used as a snapshot.
	Err error
}

// Store reads and writes snapshots in one directory.
type Store struct {
	dir      string
	compress bool
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	codecs   []persist.Codec
}

// Option configures a Store.
type Option func(*Store)

// WithCompression makes Save write LZ4-framed snapshots.
func WithCompression(enabled bool) Option {
	return func(s *Store) { s.compress = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithTracer sets the tracer for load and save spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) { s.tracer = tracer }
}

// WithClock overrides the time source used to name new snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string, opts ...Option) *Store {
	jsonCodec := persist.NewJSONCodec()

	s := &Store{
		dir:    dir,
		logger: slog.Default(),
		tracer: nooptrace.NewTracerProvider().Tracer("snapshot"),
		now:    time.Now,
		codecs: []persist.Codec{jsonCodec, persist.NewLZ4Codec(jsonCodec)},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// DefaultDir returns the cache directory next to the running executable.
func DefaultDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("%w: locate executable: %w", ErrCacheDir, err)
	}

	return filepath.Join(filepath.Dir(exe), DirName), nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the records of the first snapshot, in directory listing order,
// recorded for sourceDir. Unusable snapshot files are skipped. Only a cache
// directory that cannot be created or listed is an error.
func (s *Store) Load(ctx context.Context, sourceDir string) ([]region.ChunkRecord, bool, error) {
	_, span := s.tracer.Start(ctx, "chunkmap.cache.load",
		trace.WithAttributes(attribute.String("source", sourceDir)))
	defer span.End()

	entries, err := s.readDir()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, false, err
	}

	for _, entry := range entries {
		path := filepath.Join(s.dir, entry.Name())

		codec, ok := s.codecFor(entry)
		if !ok {
			continue
		}

		snap, err := s.read(path, codec)
		if err != nil {
			s.logger.DebugContext(ctx, "skipping snapshot", "path", path, "error", err)

			continue
		}

		if snap.RegionFolderPath != sourceDir {
			continue
		}

		s.logger.InfoContext(ctx, "found snapshot", "path", path, "chunks", len(snap.Chunks))
		span.SetAttributes(attribute.Bool("hit", true), attribute.Int("chunks", len(snap.Chunks)))

		return snap.Chunks, true, nil
	}

	span.SetAttributes(attribute.Bool("hit", false))

	return nil, false, nil
}

// Save writes a new snapshot for sourceDir and returns its path. Existing
// snapshots are never replaced or removed.
func (s *Store) Save(ctx context.Context, sourceDir string, records []region.ChunkRecord) (string, error) {
	_, span := s.tracer.Start(ctx, "chunkmap.cache.save",
		trace.WithAttributes(attribute.String("source", sourceDir), attribute.Int("chunks", len(records))))
	defer span.End()

	err := os.MkdirAll(s.dir, dirPerm)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return "", fmt.Errorf("%w: %w", ErrCacheDir, err)
	}

	if records == nil {
		records = []region.ChunkRecord{}
	}

	snap := Snapshot{RegionFolderPath: sourceDir, Chunks: records}
	codec := s.codecs[0]

	if s.compress {
		codec = s.codecs[1]
	}

	token := s.now().UnixNano()

	for range maxSaveAttempts {
		path, saveErr := persist.SaveState(s.dir, fmt.Sprintf("%d%s", token, FileSuffix), codec, snap)
		if saveErr == nil {
			s.logger.InfoContext(ctx, "wrote snapshot", "path", path, "chunks", len(records))

			return path, nil
		}

		if !errors.Is(saveErr, fs.ErrExist) {
			span.SetStatus(codes.Error, saveErr.Error())

			return "", fmt.Errorf("%w: %w", ErrCacheDir, saveErr)
		}

		token++
	}

	err = fmt.Errorf("%w: no free snapshot name after %d attempts", ErrCacheDir, maxSaveAttempts)
	span.SetStatus(codes.Error, err.Error())

	return "", err
}

// List describes every snapshot file in the cache directory in listing order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.readDir()
	if err != nil {
		return nil, err
	}

	var out []Entry

	for _, dirEntry := range entries {
		codec, ok := s.codecFor(dirEntry)
		if !ok {
			continue
		}

		entry := Entry{Path: filepath.Join(s.dir, dirEntry.Name())}

		info, infoErr := dirEntry.Info()
		if infoErr == nil {
			entry.Size = info.Size()
			entry.ModTime = info.ModTime()
		}

		snap, readErr := s.read(entry.Path, codec)
		if readErr != nil {
			s.logger.DebugContext(ctx, "unusable snapshot", "path", entry.Path, "error", readErr)
			entry.Err = readErr
		} else {
			entry.RegionFolderPath = snap.RegionFolderPath
			entry.Chunks = len(snap.Chunks)
		}

		out = append(out, entry)
	}

	return out, nil
}

func (s *Store) readDir() ([]os.DirEntry, error) {
	err := os.MkdirAll(s.dir, dirPerm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheDir, err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheDir, err)
	}

	return entries, nil
}

func (s *Store) codecFor(entry os.DirEntry) (persist.Codec, bool) {
	if !entry.Type().IsRegular() {
		return nil, false
	}

	codec, base, ok := persist.CodecForFile(entry.Name(), s.codecs...)
	if !ok || !strings.HasSuffix(base, FileSuffix) {
		return nil, false
	}

	return codec, true
}

// read decodes and validates one snapshot file.
func (s *Store) read(path string, codec persist.Codec) (*Snapshot, error) {
	var raw json.RawMessage

	err := persist.LoadState(path, codec, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	if !result.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSnapshot, result.Errors()[0])
	}

	var snap Snapshot

	err = json.Unmarshal(raw, &snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	return &snap, nil
}

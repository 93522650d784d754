package framework

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/chunkmap/pkg/region"
)

// ErrSourceDir means the source directory cannot be read.
var ErrSourceDir = errors.New("source directory unusable")

// DiscoverContainers lists the region files under dir recursively, sorted by
// order. Unreadable subdirectories are skipped; only an unreadable dir is an
// error.
func DiscoverContainers(dir string, order Order) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceDir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceDir, dir)
	}

	var files []string

	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}

			return nil
		}

		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), region.FileExtension) {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceDir, err)
	}

	sortContainers(files, order)

	return files, nil
}

// sortContainers orders paths in place. Origin order puts region files whose
// name parses first, by |x|+|z|, then the rest lexically.
func sortContainers(files []string, order Order) {
	if order != OrderOrigin {
		slices.Sort(files)

		return
	}

	type keyed struct {
		path     string
		distance int
		parsed   bool
	}

	keys := make([]keyed, len(files))

	for idx, path := range files {
		x, z, ok := region.ParseFileName(filepath.Base(path))
		keys[idx] = keyed{path: path, distance: abs(x) + abs(z), parsed: ok}
	}

	slices.SortFunc(keys, func(a, b keyed) int {
		if a.parsed != b.parsed {
			if a.parsed {
				return -1
			}

			return 1
		}

		if a.parsed {
			if c := cmp.Compare(a.distance, b.distance); c != 0 {
				return c
			}
		}

		return strings.Compare(a.path, b.path)
	})

	for idx := range keys {
		files[idx] = keys[idx].path
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}

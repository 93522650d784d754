package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// stateFilePerm is the permission of newly created state files.
const stateFilePerm = 0o644

// SaveState writes state to a new file in dir named basename plus the codec
// extension. An existing file is never replaced: the returned error wraps
// fs.ErrExist in that case.
func SaveState(dir, basename string, codec Codec, state any) (string, error) {
	path := filepath.Join(dir, basename+codec.Extension())

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, stateFilePerm)
	if err != nil {
		return "", fmt.Errorf("create state file: %w", err)
	}

	err = codec.Encode(file, state)
	if err != nil {
		return "", errors.Join(fmt.Errorf("encode state: %w", err), file.Close(), os.Remove(path))
	}

	err = file.Close()
	if err != nil {
		return "", errors.Join(fmt.Errorf("close state file: %w", err), os.Remove(path))
	}

	return path, nil
}

// LoadState loads state from the file at path. The state parameter must be a
// pointer to the target value.
func LoadState(path string, codec Codec, state any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}

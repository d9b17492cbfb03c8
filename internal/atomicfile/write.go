// Package atomicfile provides crash-safe file writing and consume-once reads
// for the small state files the seer hands over between runs.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Writing
// ///////////////////////////////////////////////

// Write atomically replaces path with data. The bytes go to a temporary file
// in the same directory which is synced, chmod'ed to perm and renamed over
// path, so a reader either sees the previous content or the complete new one.
// The temporary file is removed if any step fails.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	var success bool
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

// ///////////////////////////////////////////////
// Reading
// ///////////////////////////////////////////////

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Consume reads path and then removes it, so the content is handed to at
// most one reader. A missing file yields an error matching [os.ErrNotExist].
// If the read succeeds but the removal fails, the data is returned together
// with the removal error.
func Consume(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return data, fmt.Errorf("remove consumed file: %w", err)
	}
	return data, nil
}

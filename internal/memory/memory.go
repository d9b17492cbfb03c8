// Package memory persists the seer's knowledge between runs.
//
// A saved snapshot is restored at most once: [FileStore.Load] deletes the file
// it reads, so a crash after startup never resurrects stale knowledge.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"tools.zach/dev/seer/internal/atomicfile"
	"tools.zach/dev/seer/internal/migrate"
	"tools.zach/dev/seer/internal/wisdom"
)

// ErrCorrupt is returned by Load when the persisted file cannot be decoded.
// The file has already been removed when this error is returned.
var ErrCorrupt = errors.New("persisted knowledge is corrupt")

// Store saves and loads knowledge snapshots.
type Store interface {
	// Save writes snap, replacing any previous snapshot.
	Save(snap wisdom.Snapshot) error
	// Load returns the saved snapshot and removes it. found is false when
	// nothing was saved.
	Load() (snap wisdom.Snapshot, found bool, err error)
}

// ///////////////////////////////////////////////
// File Store
// ///////////////////////////////////////////////

// document is the on-disk JSON layout.
type document struct {
	Version      int                  `json:"version"`
	Perspectives []wisdom.Perspective `json:"perspectives"`
	Index        int                  `json:"index"`
}

// FileStore keeps one snapshot in a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Save writes snap atomically, overwriting any existing file.
func (f *FileStore) Save(snap wisdom.Snapshot) error {
	doc := document{
		Version:      migrate.Memories.CurrentVersion,
		Perspectives: snap.Perspectives,
		Index:        snap.Index,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memories: %w", err)
	}
	if err := atomicfile.Write(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write memories: %w", err)
	}
	slog.Debug("memories saved", "path", f.path, "perspectives", len(snap.Perspectives), "index", snap.Index)
	return nil
}

// Load reads and removes the file. A missing file yields found=false. A file
// that cannot be decoded is removed and reported as [ErrCorrupt].
func (f *FileStore) Load() (wisdom.Snapshot, bool, error) {
	data, err := atomicfile.Consume(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return wisdom.Snapshot{}, false, nil
	}
	if err != nil && data == nil {
		return wisdom.Snapshot{}, false, fmt.Errorf("read memories: %w", err)
	}
	if err != nil {
		// Read succeeded but removal failed; restore anyway.
		slog.Warn("memories file not removed", "path", f.path, "error", err)
	}

	snap, err := decode(data)
	if err != nil {
		if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("failed to remove corrupt memories", "path", f.path, "error", rmErr)
		}
		return wisdom.Snapshot{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	slog.Debug("memories loaded", "path", f.path, "perspectives", len(snap.Perspectives), "index", snap.Index)
	return snap, true, nil
}

// decode parses a persisted document, upgrading older schema versions.
func decode(data []byte) (wisdom.Snapshot, error) {
	var peek struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return wisdom.Snapshot{}, err
	}
	version := peek.Version
	if version == 0 {
		version = 1
	}
	if migrate.Memories.NeedsMigration(version) {
		var err error
		data, err = migrate.Memories.Upgrade(data, version)
		if err != nil {
			return wisdom.Snapshot{}, err
		}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return wisdom.Snapshot{}, err
	}
	if len(doc.Perspectives) == 0 {
		return wisdom.Snapshot{}, errors.New("no perspectives")
	}
	if doc.Index < 0 || doc.Index >= len(doc.Perspectives) {
		return wisdom.Snapshot{}, fmt.Errorf("index %d out of range", doc.Index)
	}
	return wisdom.Snapshot{Perspectives: doc.Perspectives, Index: doc.Index}, nil
}

// ///////////////////////////////////////////////
// Memory Store
// ///////////////////////////////////////////////

// MemStore keeps a snapshot in memory. Its zero value is empty and ready to use.
type MemStore struct {
	mu    sync.Mutex
	snap  *wisdom.Snapshot
	saves int
}

// Save stores a copy of snap.
func (m *MemStore) Save(snap wisdom.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := clone(snap)
	m.snap = &c
	m.saves++
	return nil
}

// Load returns and clears the stored snapshot.
func (m *MemStore) Load() (wisdom.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return wisdom.Snapshot{}, false, nil
	}
	snap := *m.snap
	m.snap = nil
	return snap, true, nil
}

// Peek returns the stored snapshot without clearing it.
func (m *MemStore) Peek() (wisdom.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return wisdom.Snapshot{}, false
	}
	return clone(*m.snap), true
}

// Saves returns how many times Save has been called.
func (m *MemStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func clone(s wisdom.Snapshot) wisdom.Snapshot {
	out := wisdom.Snapshot{Index: s.Index, Perspectives: make([]wisdom.Perspective, len(s.Perspectives))}
	for i, p := range s.Perspectives {
		out.Perspectives[i] = wisdom.Perspective{Name: p.Name, Answers: append([]string(nil), p.Answers...)}
	}
	return out
}

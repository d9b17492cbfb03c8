// Package migrate upgrades versioned on-disk data (config.toml and the
// memories file) one schema version at a time.
package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrTooNew is returned when data carries a schema version newer than the
// running build understands.
var ErrTooNew = errors.New("schema version newer than supported")

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades data from the prior schema version to Version.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade transforms data from the prior version to [Migration.Version].
	Upgrade func(data []byte) ([]byte, error)
}

// Registry holds the current version and the migrations for one kind of file.
type Registry struct {
	// Name identifies the file kind in log output and errors.
	Name string
	// CurrentVersion is the schema version written by this build.
	CurrentVersion int
	// Migrations is exported so tests can substitute their own list.
	Migrations []Migration
}

// Config is the registry for config.toml.
var Config = &Registry{Name: "config", CurrentVersion: 1}

// Memories is the registry for the persisted knowledge file.
var Memories = &Registry{Name: "memories", CurrentVersion: 1}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Register adds m to the registry. It panics on a duplicate version since two
// migrations producing the same version is a programming error.
func (r *Registry) Register(m Migration) {
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate %s migration version %d (%q)", r.Name, m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether data at fileVersion differs from the
// registry's current version.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return fileVersion != r.CurrentVersion
}

// Upgrade brings data from fromVersion to the registry's current version.
// Data newer than the current version is rejected with [ErrTooNew].
func (r *Registry) Upgrade(data []byte, fromVersion int) ([]byte, error) {
	if fromVersion > r.CurrentVersion {
		return nil, fmt.Errorf("%s v%d (running v%d): %w", r.Name, fromVersion, r.CurrentVersion, ErrTooNew)
	}
	out, _, err := Run(data, fromVersion, r.Migrations)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Name, err)
	}
	return out, nil
}

// Run applies migrations in version order where fromVersion < m.Version and
// returns the transformed data together with the last version reached.
func Run(data []byte, fromVersion int, migrations []Migration) ([]byte, int, error) {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	version := fromVersion
	for _, m := range sorted {
		if version >= m.Version {
			continue
		}
		slog.Info("applying migration", "version", m.Version, "description", m.Description)
		var err error
		data, err = m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		version = m.Version
	}
	return data, version, nil
}

// Package wisdom holds the seer's knowledge: a table of perspectives, each a
// named list of answers, and the index of the perspective currently in use.
//
// The built-in table is embedded from data/knowledge.yaml. Extra tables can be
// appended from YAML files matched by doublestar glob patterns.
package wisdom

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

//go:embed data/knowledge.yaml
var builtinKnowledge []byte

// ErrEmptyPerspective is returned when a loaded perspective has no name or no
// answers.
var ErrEmptyPerspective = errors.New("perspective has no name or no answers")

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Perspective is a named set of candidate answers.
type Perspective struct {
	Name    string   `yaml:"perspective" json:"perspective"`
	Answers []string `yaml:"answers" json:"answers"`
}

// Snapshot is the serializable state of a [Store].
type Snapshot struct {
	Perspectives []Perspective `json:"perspectives"`
	Index        int           `json:"index"`
}

// Store is the knowledge table plus the selected perspective. It is not safe
// for concurrent mutation; the seer serializes access under its own lock.
type Store struct {
	sources  []string
	table    []Perspective
	index    int
	selected bool

	// intn returns a uniform int in [0, n). Tests replace it.
	intn func(n int) int
}

// New returns an empty Store. sources are glob patterns of extra YAML files
// read on every [Store.AcquireKnowledge] after the built-in table.
func New(sources ...string) *Store {
	return &Store{sources: sources, intn: rand.IntN}
}

// ///////////////////////////////////////////////
// Acquisition
// ///////////////////////////////////////////////

// AcquireKnowledge reloads the perspective table and moves to a perspective.
// The first acquisition selects index 0; later ones select a different index
// uniformly at random when more than one perspective exists. On error the
// store is left unchanged.
func (s *Store) AcquireKnowledge() error {
	table, err := s.load()
	if err != nil {
		return err
	}
	s.table = table
	s.updatePerspective()
	slog.Debug("knowledge acquired",
		"perspectives", len(s.table),
		"index", s.index,
		"perspective", s.table[s.index].Name,
	)
	return nil
}

// load reads the built-in table and every file matched by the configured
// sources. Files are read in sorted order per pattern.
func (s *Store) load() ([]Perspective, error) {
	table, err := parse(builtinKnowledge)
	if err != nil {
		return nil, fmt.Errorf("built-in knowledge: %w", err)
	}

	for _, pattern := range s.sources {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("knowledge source %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read knowledge %s: %w", path, err)
			}
			extra, err := parse(data)
			if err != nil {
				return nil, fmt.Errorf("knowledge %s: %w", path, err)
			}
			table = append(table, extra...)
		}
	}

	if len(table) == 0 {
		return nil, errors.New("no perspectives found")
	}
	return table, nil
}

// parse decodes a YAML list of perspectives and checks each one is usable.
func parse(data []byte) ([]Perspective, error) {
	var table []Perspective
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	for i, p := range table {
		if p.Name == "" || len(p.Answers) == 0 {
			return nil, fmt.Errorf("entry %d: %w", i, ErrEmptyPerspective)
		}
	}
	return table, nil
}

func (s *Store) updatePerspective() {
	if !s.selected {
		s.index = 0
		s.selected = true
		return
	}
	s.index = s.otherIndex()
}

// otherIndex picks an index different from the current one, or 0 when there
// is only one perspective.
func (s *Store) otherIndex() int {
	n := len(s.table)
	if n <= 1 {
		return 0
	}
	cur := s.index
	if cur < 0 || cur >= n {
		return s.intn(n)
	}
	next := s.intn(n - 1)
	if next >= cur {
		next++
	}
	return next
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// IsMeager reports whether no knowledge has been acquired or restored.
func (s *Store) IsMeager() bool {
	return len(s.table) == 0
}

// Answer returns a random answer from the current perspective, or "" when the
// store is meager.
func (s *Store) Answer() string {
	if s.IsMeager() {
		return ""
	}
	answers := s.table[s.index].Answers
	return answers[s.intn(len(answers))]
}

// PerspectiveIndex returns the index of the current perspective.
func (s *Store) PerspectiveIndex() int {
	return s.index
}

// Perspective returns the name of the current perspective, or "" when the
// store is meager.
func (s *Store) Perspective() string {
	if s.IsMeager() {
		return ""
	}
	return s.table[s.index].Name
}

// Len returns the number of perspectives.
func (s *Store) Len() int {
	return len(s.table)
}

// ///////////////////////////////////////////////
// Snapshot / Restore
// ///////////////////////////////////////////////

// Snapshot returns a deep copy of the table and the current index.
func (s *Store) Snapshot() Snapshot {
	table := make([]Perspective, len(s.table))
	for i, p := range s.table {
		table[i] = Perspective{Name: p.Name, Answers: append([]string(nil), p.Answers...)}
	}
	return Snapshot{Perspectives: table, Index: s.index}
}

// Restore replaces the store's state with snap. An empty snapshot leaves the
// store meager.
func (s *Store) Restore(snap Snapshot) error {
	if len(snap.Perspectives) == 0 {
		s.table = nil
		s.index = 0
		s.selected = false
		return nil
	}
	if snap.Index < 0 || snap.Index >= len(snap.Perspectives) {
		return fmt.Errorf("snapshot index %d out of range [0,%d)", snap.Index, len(snap.Perspectives))
	}
	for i, p := range snap.Perspectives {
		if p.Name == "" || len(p.Answers) == 0 {
			return fmt.Errorf("snapshot entry %d: %w", i, ErrEmptyPerspective)
		}
	}
	s.table = snap.Perspectives
	s.index = snap.Index
	s.selected = true
	return nil
}

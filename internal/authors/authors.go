// Package authors maps display names to stable author ids and back.
//
// A [Store] is loaded from two JSON files: the authors file, written by the
// archive exporter as {"displayName": "authorId"}, and an optional alias file
// of the same shape that the bot maintains itself. Aliases are merged on top
// of the authors map. Only the alias file is ever written.
package authors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrUnknownName is returned by [Store.SetAlias] when neither side names a
// known author.
var ErrUnknownName = errors.New("authors: unknown name")

// ConflictError is returned by [Store.SetAlias] when the new name is already
// taken. Canonical is the name the taken id resolves to and Name is the name
// it is "already called".
type ConflictError struct {
	Canonical string
	Name      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("authors: %s is already called %s", e.Canonical, e.Name)
}

// Alias is a recorded alias: NewName now resolves to the same id as
// ExistingName.
type Alias struct {
	NewName      string
	ExistingName string
	ID           string
}

// Store is the author/alias map. Safe for concurrent use.
type Store struct {
	authorsPath string
	aliasPath   string

	// flushMu orders alias file writes; it is taken before mu.
	flushMu sync.Mutex

	mu      sync.RWMutex
	ids     map[string]string // name -> id, authors + aliases + learned
	names   map[string]string // id -> canonical name
	aliases map[string]string // alias -> id, the persisted subset
}

// New returns an empty store bound to the given files. Call [Store.Load] to
// read them.
func New(authorsPath, aliasPath string) *Store {
	return &Store{
		authorsPath: authorsPath,
		aliasPath:   aliasPath,
		ids:         make(map[string]string),
		names:       make(map[string]string),
		aliases:     make(map[string]string),
	}
}

// Open is New followed by Load.
func Open(authorsPath, aliasPath string) (*Store, error) {
	s := New(authorsPath, aliasPath)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory maps with the file contents. The authors file
// must exist; a missing alias file is treated as empty. Learned names are
// discarded.
func (s *Store) Load() error {
	authors, err := readMap(s.authorsPath)
	if err != nil {
		return fmt.Errorf("authors: load %s: %w", s.authorsPath, err)
	}
	aliases, err := readMap(s.aliasPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("authors: load %s: %w", s.aliasPath, err)
	}
	if aliases == nil {
		aliases = make(map[string]string)
	}

	ids := make(map[string]string, len(authors)+len(aliases))
	names := make(map[string]string, len(authors))
	// Sorted so the canonical name of an id with several entries is stable.
	for _, name := range sortedKeys(authors) {
		id := authors[name]
		ids[name] = id
		if _, ok := names[id]; !ok {
			names[id] = name
		}
	}
	for alias, id := range aliases {
		ids[alias] = id
	}

	s.mu.Lock()
	s.ids, s.names, s.aliases = ids, names, aliases
	s.mu.Unlock()
	return nil
}

// Flush writes the alias map to the alias file. The write goes through a
// temporary file and a rename so a crash never leaves a truncated file.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	blob, err := json.MarshalIndent(s.aliases, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("authors: flush: %w", err)
	}
	return writeAtomic(s.aliasPath, blob)
}

// ID returns the author id for name.
func (s *Store) ID(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[name]
	return id, ok
}

// Name returns the canonical display name for id.
func (s *Store) Name(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[id]
	return name, ok
}

// Names returns the canonical name of id followed by every other name that
// maps to it, sorted.
func (s *Store) Names(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canonical, ok := s.names[id]
	var out []string
	if ok {
		out = append(out, canonical)
	}
	var rest []string
	for name, other := range s.ids {
		if other == id && name != canonical {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// Learn records a name observed on the transport. Learned names are not
// persisted; a name already mapped is left alone.
func (s *Store) Learn(name, id string) {
	if name == "" || id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[name]; !ok {
		s.ids[name] = id
	}
	if _, ok := s.names[id]; !ok {
		s.names[id] = name
	}
}

// Snapshot returns a copy of the full name to id map.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.ids))
	for k, v := range s.ids {
		out[k] = v
	}
	return out
}

// SetAlias records that one of left and right is another name for the
// author the other one names. Whichever side is known is the existing name;
// if both are known the right side is treated as new and the call fails with
// a [*ConflictError]. The alias file is written before SetAlias returns; if
// the write fails the alias is dropped again.
func (s *Store) SetAlias(left, right string) (Alias, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	existing, fresh := left, right
	id, ok := s.ids[existing]
	if !ok {
		existing, fresh = right, left
		id, ok = s.ids[existing]
	}
	if !ok {
		s.mu.Unlock()
		return Alias{}, ErrUnknownName
	}

	if takenID, taken := s.ids[fresh]; taken {
		canonical := s.names[takenID]
		name := fresh
		if canonical == fresh {
			name = existing
		}
		s.mu.Unlock()
		return Alias{}, &ConflictError{Canonical: canonical, Name: name}
	}

	s.ids[fresh] = id
	s.aliases[fresh] = id
	blob, err := json.MarshalIndent(s.aliases, "", "  ")
	s.mu.Unlock()

	if err == nil {
		err = writeAtomic(s.aliasPath, blob)
	}
	if err != nil {
		s.mu.Lock()
		delete(s.ids, fresh)
		delete(s.aliases, fresh)
		s.mu.Unlock()
		return Alias{}, fmt.Errorf("authors: set alias %q: %w", fresh, err)
	}
	return Alias{NewName: fresh, ExistingName: existing, ID: id}, nil
}

func readMap(path string) (map[string]string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = make(map[string]string)
	}
	return m, nil
}

func writeAtomic(path string, blob []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("authors: flush: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("authors: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("authors: flush: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("authors: flush: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

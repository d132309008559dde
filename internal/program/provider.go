package program

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Provider hands out the current program snapshot.
type Provider interface {
	Snapshot() Snapshot
}

// Static always returns the same snapshot.
type Static Snapshot

func (s Static) Snapshot() Snapshot { return Snapshot(s) }

// Store is a Provider whose snapshot can be swapped atomically, e.g. on reload.
type Store struct {
	current atomic.Pointer[Snapshot]
	path    string
}

// NewStore loads path (or the defaults when path is empty).
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Snapshot() Snapshot {
	return *s.current.Load()
}

// Reload re-reads the program file. A file that fails validation leaves the
// previous snapshot in place.
func (s *Store) Reload() error {
	snap := Default()
	if s.path != "" {
		loaded, err := LoadFile(s.path)
		if err != nil {
			return err
		}
		snap = loaded
	}
	s.current.Store(&snap)
	return nil
}

// LoadFile parses a YAML program file. Keys omitted in the file keep their
// default values.
func LoadFile(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read program file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(raw []byte) (Snapshot, error) {
	snap := Default()
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode program: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("invalid program: %w", err)
	}
	return snap, nil
}

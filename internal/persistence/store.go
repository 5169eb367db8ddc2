// Package persistence provides an atomic single-file JSON snapshot of the
// session registry.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/happyclaw/supervisor/internal/types"
)

// Store manages <dataDir>/sessions.json.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store rooted at dataDir. The directory is created on demand
// by Save, not by New.
func New(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, "sessions.json")}
}

// Save writes list to sessions.json.tmp then renames over the target. At
// most one Save is ever in flight per Store (serialized by s.mu); the
// SessionManager is expected to additionally serialize calls so concurrent
// mutations appear atomic end-to-end.
func (s *Store) Save(list []types.PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(list)
}

func (s *Store) saveLocked(list []types.PersistedSession) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: create data dir: %w", err)
	}

	if list == nil {
		list = []types.PersistedSession{}
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persistence: write temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persistence: rename temp file: %w", err)
	}
	return nil
}

// Load returns the parsed sessions.json array. A missing file or a
// top-level non-array JSON value both yield an empty slice. Any other
// unparseable content is a CorruptStoreError.
func (s *Store) Load() ([]types.PersistedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]types.PersistedSession, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.PersistedSession{}, nil
		}
		return nil, fmt.Errorf("persistence: read: %w", err)
	}

	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &types.CorruptStoreError{Path: s.path, Err: err}
	}

	var list []types.PersistedSession
	if err := json.Unmarshal(raw, &list); err != nil {
		// Valid JSON, but not an array (e.g. a bare string or object):
		// treated as an empty store rather than corrupt.
		var anyValue any
		if jsonErr := json.Unmarshal(raw, &anyValue); jsonErr == nil {
			if _, isArray := anyValue.([]any); !isArray {
				return []types.PersistedSession{}, nil
			}
		}
		return nil, &types.CorruptStoreError{Path: s.path, Err: err}
	}

	return list, nil
}

// Add appends session and saves, unless a record with the same id already
// exists (in which case it's a no-op, ids are never reused in practice).
func (s *Store) Add(session types.PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing.ID == session.ID {
			return nil
		}
	}
	list = append(list, session)
	return s.saveLocked(list)
}

// Update replaces the record matching session.ID, if present, and saves. An
// unknown id is a silent no-op.
func (s *Store) Update(session types.PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked()
	if err != nil {
		return err
	}
	found := false
	for i, existing := range list {
		if existing.ID == session.ID {
			list[i] = session
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	return s.saveLocked(list)
}

// Remove deletes the record with id, if present, and saves. An unknown id is
// a silent no-op.
func (s *Store) Remove(id string) error {
	return s.RemoveMany([]string{id})
}

// RemoveMany deletes every record whose id is in ids and saves.
func (s *Store) RemoveMany(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked()
	if err != nil {
		return err
	}

	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}

	kept := list[:0]
	for _, existing := range list {
		if _, drop := remove[existing.ID]; !drop {
			kept = append(kept, existing)
		}
	}
	return s.saveLocked(kept)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vintedwatch/monitor-service/internal/model"
)

// JSONStore is a single-file implementation of both SearchRegistry and
// SeenStore, for running without Postgres or Redis. Every mutation is
// flushed synchronously via an atomic write (temp file + rename), so an
// abrupt shutdown never leaves a partially written state file.
type JSONStore struct {
	path string
	mu   sync.RWMutex
	data stateFile
}

type stateFile struct {
	Searches []model.SearchDefinition   `json:"searches"`
	Seen     map[string]map[string]bool `json:"seen"` // searchID -> listingID -> true
}

// NewJSONStore loads (or initialises) the state file at path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		data: stateFile{Seen: make(map[string]map[string]bool)},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir state dir: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	if s.data.Seen == nil {
		s.data.Seen = make(map[string]map[string]bool)
	}
	return s, nil
}

var (
	_ SearchRegistry = (*JSONStore)(nil)
	_ SeenStore      = (*JSONStore)(nil)
)

// flush must be called with the write lock held.
func (s *JSONStore) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

func (s *JSONStore) Add(ctx context.Context, def model.SearchDefinition) (model.SearchDefinition, error) {
	if err := def.Validate(); err != nil {
		return model.SearchDefinition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	def.ID = newSearchID()
	def.CreatedAt = time.Now().UTC()
	s.data.Searches = append(s.data.Searches, def)

	if err := s.flush(); err != nil {
		s.data.Searches = s.data.Searches[:len(s.data.Searches)-1]
		return model.SearchDefinition{}, err
	}
	return def, nil
}

func (s *JSONStore) List(ctx context.Context) ([]model.SearchDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SearchDefinition, len(s.data.Searches))
	copy(out, s.data.Searches)
	return out, nil
}

func (s *JSONStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, def := range s.data.Searches {
		if def.ID == id {
			s.data.Searches = append(s.data.Searches[:i], s.data.Searches[i+1:]...)
			return s.flush()
		}
	}
	return ErrNotFound
}

func (s *JSONStore) Has(ctx context.Context, searchID, listingID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Seen[searchID][listingID], nil
}

func (s *JSONStore) Mark(ctx context.Context, searchID, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Seen[searchID] == nil {
		s.data.Seen[searchID] = make(map[string]bool)
	}
	if s.data.Seen[searchID][listingID] {
		return nil
	}
	s.data.Seen[searchID][listingID] = true
	return s.flush()
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/clinicdesk/session-gateway/internal/ports"
)

// FileStore is a single-file JSON KeyValueStore: the workstation-local analogue
// of browser storage. One process owns the file; writes are last-write-wins with
// no cross-process coordination, matching the single-writer model of the session
// layer. Writes go through a temp-file rename so a crash mid-write never leaves
// a half-written document.
type FileStore struct {
	path string

	mu sync.Mutex
	m  map[string]json.RawMessage
}

// NewFileStore loads (or initializes) the store at path. An unreadable or
// corrupt document starts empty rather than failing: storage corruption must
// degrade to "no session".
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	s := &FileStore{path: path, m: make(map[string]json.RawMessage)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read storage file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.m); err != nil {
		s.m = make(map[string]json.RawMessage)
	}
	return s, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.m[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}
	var decoded string
	if err := json.Unmarshal(value, &decoded); err != nil {
		return nil, ports.ErrKeyNotFound
	}
	return []byte(decoded), nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	encoded, err := json.Marshal(string(value))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = encoded
	return s.flushLocked()
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return nil
	}
	delete(s.m, key)
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(s.m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}

// Package store holds the Local Session Store: a tiny key/value store that
// survives restarts and remembers which document was last active.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/utils"
	"github.com/patrickmn/go-cache"
)

// KeyLastActiveDocument is the only key the client writes.
const KeyLastActiveDocument = "lastActiveDocumentId"

// Store is a string key/value store.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// FileStore persists its entries as a JSON object on disk.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// NewFileStore opens the store at path, loading existing entries once.
// A missing file is treated as an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store path cannot be empty")
	}
	s := &FileStore{path: path, entries: map[string]string{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.entries); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", path, err)
	}
	if s.entries == nil {
		s.entries = map[string]string{}
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

// Set updates the entry and rewrites the file atomically. On a failed write
// the in-memory entry is left unchanged.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]string, len(s.entries)+1)
	for k, v := range s.entries {
		next[k] = v
	}
	next[key] = value
	data, err := utils.PrettyJSON(next)
	if err != nil {
		return err
	}
	if err := utils.SafeWriteFile(s.path, data); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	s.entries = next
	return nil
}

// MemoryStore keeps entries for the lifetime of the process only.
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, time.Duration(0))}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	x, found := s.c.Get(key)
	if !found {
		return "", false, nil
	}
	v, ok := x.(string)
	if !ok {
		return "", false, fmt.Errorf("store: unexpected value type %T for %q", x, key)
	}
	return v, true, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.c.Set(key, value, cache.NoExpiration)
	return nil
}

// Package favorites persists a user's favorite locations in a simple
// key-value store under a fixed key.
package favorites

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/NERVsystems/overpass/pkg/geo"
)

// storeKey is the fixed key favorites are persisted under.
const storeKey = "favorites"

// Store persists raw values by key. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// Favorite is one saved location.
type Favorite struct {
	Name     string       `json:"name"`
	Location geo.Location `json:"coordinate"`
	Type     string       `json:"type,omitempty"`
	AddedAt  time.Time    `json:"addedDate"`
}

// List manages favorite locations backed by a Store. The list is loaded
// once at construction and saved on every mutation.
type List struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	items []Favorite
}

// NewList loads the favorites list from the store.
func NewList(store Store, logger *slog.Logger) (*List, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &List{
		store:  store,
		logger: logger.With("component", "favorites"),
	}

	raw, ok, err := store.Get(storeKey)
	if err != nil {
		return nil, fmt.Errorf("loading favorites: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &l.items); err != nil {
			return nil, fmt.Errorf("decoding favorites: %w", err)
		}
	}
	return l, nil
}

// Add saves a favorite. A favorite with the same name is replaced.
func (l *List) Add(f Favorite) error {
	if err := f.Location.Validate(); err != nil {
		return err
	}
	if f.AddedAt.IsZero() {
		f.AddedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	replaced := false
	for i := range l.items {
		if l.items[i].Name == f.Name {
			l.items[i] = f
			replaced = true
			break
		}
	}
	if !replaced {
		l.items = append(l.items, f)
	}
	if err := l.saveLocked(); err != nil {
		return err
	}
	l.logger.Debug("favorite saved", "name", f.Name, "replaced", replaced)
	return nil
}

// Remove deletes a favorite by name. It reports whether anything was
// removed.
func (l *List) Remove(name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.items {
		if l.items[i].Name == name {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true, l.saveLocked()
		}
	}
	return false, nil
}

// All returns a copy of the favorites list.
func (l *List) All() []Favorite {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Favorite, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List) saveLocked() error {
	raw, err := json.Marshal(l.items)
	if err != nil {
		return fmt.Errorf("encoding favorites: %w", err)
	}
	if err := l.store.Set(storeKey, raw); err != nil {
		return fmt.Errorf("saving favorites: %w", err)
	}
	return nil
}

// FileStore is a JSON file backed key-value store.
type FileStore struct {
	path string

	mu   sync.Mutex
	data map[string]json.RawMessage
}

// NewFileStore opens a file-backed store, loading the file if it exists.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		data: make(map[string]json.RawMessage),
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading store file: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("decoding store file: %w", err)
		}
	}
	return s, nil
}

// Get returns the raw value for the key, if present.
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	return raw, ok, nil
}

// Set stores the value and writes the file through a temp-file rename.
func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = json.RawMessage(value)
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

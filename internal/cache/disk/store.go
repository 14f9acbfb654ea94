package disk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"elementx/internal/imagecache"
)

type Config struct {
	Root      string
	IndexFile string
}

type diskEntry struct {
	File      string    `json:"file"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type diskIndex struct {
	Entries map[string]diskEntry `json:"entries"`
}

// Store persists values as files under Root and keeps a JSON index of keys,
// sizes, and write times so listings survive restarts.
type Store struct {
	mu sync.Mutex

	dataDir   string
	indexPath string
	entries   map[string]diskEntry
}

func NewStore(cfg Config) (*Store, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	indexFile := strings.TrimSpace(cfg.IndexFile)
	if indexFile == "" {
		indexFile = "index.json"
	}

	s := &Store{
		dataDir:   filepath.Join(root, "data"),
		indexPath: filepath.Join(root, indexFile),
		entries:   map[string]diskEntry{},
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, err
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	if err := s.dropMissingLocked(); err != nil {
		return nil, err
	}
	if err := s.persistIndexLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	raw, err := os.ReadFile(filepath.Join(s.dataDir, ent.File))
	if err != nil {
		if os.IsNotExist(err) {
			delete(s.entries, key)
			_ = s.persistIndexLocked()
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	file := hashedName(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := filepath.Join(s.dataDir, file+".tmp")
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(s.dataDir, file)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.entries[key] = diskEntry{File: file, Size: int64(len(value)), CreatedAt: time.Now()}
	return s.persistIndexLocked()
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	delete(s.entries, key)
	if err := os.Remove(filepath.Join(s.dataDir, ent.File)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.persistIndexLocked()
}

func (s *Store) List(_ context.Context, prefix string) ([]imagecache.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]imagecache.Object, 0, len(s.entries))
	for key, ent := range s.entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, imagecache.Object{Key: key, Size: ent.Size, ModTime: ent.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Key < out[j].Key
		}
		return out[i].ModTime.Before(out[j].ModTime)
	})
	return out, nil
}

func (s *Store) loadIndex() error {
	raw, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var idx diskIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return fmt.Errorf("decode index %s: %w", s.indexPath, err)
	}
	if idx.Entries != nil {
		s.entries = idx.Entries
	}
	return nil
}

// dropMissingLocked forgets index entries whose data file is gone.
func (s *Store) dropMissingLocked() error {
	for key, ent := range s.entries {
		if _, err := os.Stat(filepath.Join(s.dataDir, ent.File)); err != nil {
			if os.IsNotExist(err) {
				delete(s.entries, key)
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Store) persistIndexLocked() error {
	raw, err := json.MarshalIndent(diskIndex{Entries: s.entries}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.indexPath)
}

func hashedName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}

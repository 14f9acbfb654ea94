package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"elementx/internal/imagecache"
)

// ErrQuotaExceeded is returned by Put when the store's quota is full, the
// in-process analogue of a storage engine refusing a write.
var ErrQuotaExceeded = errors.New("memory: storage quota exceeded")

type object struct {
	value   []byte
	modTime time.Time
	seq     uint64
}

// Store is a threadsafe in-process backend. A Quota <= 0 means unlimited.
type Store struct {
	mu      sync.Mutex
	objects map[string]object
	used    int64
	quota   int64
	seq     uint64
}

func NewStore(quota int64) *Store {
	return &Store{objects: map[string]object{}, quota: quota}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), o.value...), true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.used
	if old, ok := s.objects[key]; ok {
		used -= int64(len(old.value))
	}
	if s.quota > 0 && used+int64(len(value)) > s.quota {
		return ErrQuotaExceeded
	}
	s.seq++
	s.objects[key] = object{value: append([]byte(nil), value...), modTime: time.Now(), seq: s.seq}
	s.used = used + int64(len(value))
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.objects[key]; ok {
		s.used -= int64(len(old.value))
		delete(s.objects, key)
	}
	return nil
}

// List returns matching objects in write order.
func (s *Store) List(_ context.Context, prefix string) ([]imagecache.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type row struct {
		imagecache.Object
		seq uint64
	}
	rows := make([]row, 0, len(s.objects))
	for k, o := range s.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rows = append(rows, row{imagecache.Object{Key: k, Size: int64(len(o.value)), ModTime: o.modTime}, o.seq})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]imagecache.Object, len(rows))
	for i, r := range rows {
		out[i] = r.Object
	}
	return out, nil
}

// Used is the number of value bytes held.
func (s *Store) Used() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Len is the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

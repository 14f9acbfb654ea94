// Package imagecache is the durable key -> image cache. It owns the size
// budget and eviction order; storage engines only move bytes.
package imagecache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"elementx/internal/logging"
	"elementx/internal/metrics"
)

// Object describes one stored value as reported by a Backend listing.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Backend is a plain byte store. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

type Config struct {
	Namespace  string
	Version    string
	MaxBytes   int64
	HotEntries int
}

func DefaultConfig() Config {
	return Config{
		Namespace:  "elementx_img",
		Version:    "v1",
		MaxBytes:   4 * 1024 * 1024, // 4MiB
		HotEntries: 256,
	}
}

// versionTag is the accepted shape of Config.Version. Tags never contain "_",
// so "<ns>_thumbs_..." under a sibling namespace is not mistaken for an old
// version of <ns>.
var versionTag = regexp.MustCompile(`^v[0-9][0-9A-Za-z.-]*$`)

// entry is the stored payload.
type entry struct {
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data"`
}

type indexEntry struct {
	key        string
	storageKey string
	size       int64
}

// Cache evicts in insertion order (oldest first) whenever a write would push
// the accounted size past MaxBytes.
type Cache struct {
	backend  Backend
	prefix   string
	maxBytes int64
	hot      *lru.Cache[string, string]
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element
	total int64
}

// Open loads the index from backend. Entries stored under the same namespace
// with a different version tag are deleted; keys of other namespaces sharing
// the prefix are left alone.
func Open(ctx context.Context, backend Backend, cfg Config, log *zap.Logger, m *metrics.Metrics) (*Cache, error) {
	if backend == nil {
		return nil, fmt.Errorf("imagecache: backend is required")
	}
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Namespace) == "" {
		cfg.Namespace = def.Namespace
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = def.Version
	}
	if !versionTag.MatchString(cfg.Version) {
		return nil, fmt.Errorf("imagecache: version %q must look like v1 or v2.1", cfg.Version)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.HotEntries <= 0 {
		cfg.HotEntries = def.HotEntries
	}
	hot, err := lru.New[string, string](cfg.HotEntries)
	if err != nil {
		return nil, fmt.Errorf("imagecache: hot tier: %w", err)
	}

	c := &Cache{
		backend:  backend,
		prefix:   cfg.Namespace + "_" + cfg.Version + "_",
		maxBytes: cfg.MaxBytes,
		hot:      hot,
		log:      logging.OrNop(log).Named("imagecache"),
		metrics:  m,
		now:      time.Now,
		order:    list.New(),
		index:    map[string]*list.Element{},
	}
	if err := c.load(ctx, cfg.Namespace+"_"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) load(ctx context.Context, namespacePrefix string) error {
	objs, err := c.backend.List(ctx, namespacePrefix)
	if err != nil {
		return fmt.Errorf("imagecache: list backend: %w", err)
	}
	live := make([]Object, 0, len(objs))
	for _, o := range objs {
		if strings.HasPrefix(o.Key, c.prefix) {
			live = append(live, o)
			continue
		}
		rest := strings.TrimPrefix(o.Key, namespacePrefix)
		tag, _, found := strings.Cut(rest, "_")
		if !found || !versionTag.MatchString(tag) {
			continue
		}
		if err := c.backend.Delete(ctx, o.Key); err != nil {
			c.log.Warn("drop stale cache entry failed", zap.String("key", o.Key), zap.Error(err))
		}
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].ModTime.Before(live[j].ModTime) })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range live {
		ie := &indexEntry{
			key:        strings.TrimPrefix(o.Key, c.prefix),
			storageKey: o.Key,
			size:       int64(len(o.Key)) + o.Size,
		}
		c.index[o.Key] = c.order.PushBack(ie)
		c.total += ie.size
	}
	for c.total > c.maxBytes && c.order.Len() > 0 {
		c.evictLocked(ctx, c.order.Front())
	}
	c.metrics.SetCacheBytes(c.total)
	c.log.Info("image cache loaded",
		zap.Int("entries", c.order.Len()),
		zap.Int64("bytes", c.total),
		zap.Int64("max_bytes", c.maxBytes),
		zap.String("prefix", c.prefix))
	return nil
}

// Get returns the cached image for key. Storage errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || strings.TrimSpace(key) == "" {
		return "", false
	}
	if v, ok := c.hot.Get(key); ok {
		return v, true
	}
	sk := c.prefix + key
	raw, ok, err := c.backend.Get(ctx, sk)
	if err != nil {
		c.log.Debug("cache read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Data == "" {
		c.log.Debug("cache entry unreadable", zap.String("key", key), zap.Error(err))
		return "", false
	}
	c.hot.Add(key, e.Data)
	return e.Data, true
}

// Set stores data under key. It never fails: entries larger than the budget
// and writes the backend refuses are dropped.
func (c *Cache) Set(ctx context.Context, key, data string) {
	if c == nil || strings.TrimSpace(key) == "" || data == "" {
		return
	}
	raw, err := json.Marshal(entry{Timestamp: c.now().UnixMilli(), Data: data})
	if err != nil {
		return
	}
	sk := c.prefix + key
	size := int64(len(sk) + len(raw))
	if size > c.maxBytes {
		c.metrics.IncCacheDropped()
		c.log.Debug("entry exceeds cache budget", zap.String("key", key), zap.Int64("size", size))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, replacing := c.index[sk]
	for c.total+size-c.sizeLocked(prev) > c.maxBytes && c.order.Len() > 0 {
		front := c.order.Front()
		if front == prev {
			if front = front.Next(); front == nil {
				break
			}
		}
		c.evictLocked(ctx, front)
	}
	if err := c.backend.Put(ctx, sk, raw); err != nil {
		c.metrics.IncCacheDropped()
		c.metrics.SetCacheBytes(c.total)
		c.log.Warn("cache write refused, continuing uncached", zap.String("key", key), zap.Error(err))
		return
	}
	if replacing {
		c.unlinkLocked(prev)
	}
	c.index[sk] = c.order.PushBack(&indexEntry{key: key, storageKey: sk, size: size})
	c.total += size
	c.hot.Add(key, data)
	c.metrics.SetCacheBytes(c.total)
}

// TotalBytes is the accounted size of all live entries.
func (c *Cache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Len is the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// MaxBytes is the configured budget.
func (c *Cache) MaxBytes() int64 { return c.maxBytes }

func (c *Cache) evictLocked(ctx context.Context, ele *list.Element) {
	ie := ele.Value.(*indexEntry)
	c.unlinkLocked(ele)
	if err := c.backend.Delete(ctx, ie.storageKey); err != nil {
		c.log.Warn("evict cache entry failed", zap.String("key", ie.key), zap.Error(err))
	}
	c.metrics.IncCacheEvicted()
}

func (c *Cache) unlinkLocked(ele *list.Element) {
	ie := ele.Value.(*indexEntry)
	c.order.Remove(ele)
	delete(c.index, ie.storageKey)
	c.hot.Remove(ie.key)
	c.total -= ie.size
	if c.total < 0 {
		c.total = 0
	}
}

func (c *Cache) sizeLocked(ele *list.Element) int64 {
	if ele == nil {
		return 0
	}
	return ele.Value.(*indexEntry).size
}

package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"elementx/internal/imagecache"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// IndexKey names the sorted set recording write times.
	IndexKey string
}

// Store keeps values as plain strings and their write times in a sorted set,
// so listings come back in insertion order.
type Store struct {
	client   *redis.Client
	indexKey string
}

func NewStore(cfg Config) (*Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return New(client, cfg.IndexKey), nil
}

// New wraps an existing client.
func New(client *redis.Client, indexKey string) *Store {
	if strings.TrimSpace(indexKey) == "" {
		indexKey = "elementx:image_cache:index"
	}
	return &Store{client: client, indexKey: indexKey}
}

// Ping checks if the connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return res, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, 0)
		p.ZAdd(ctx, s.indexKey, redis.Z{Score: float64(time.Now().UnixMilli()), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.ZRem(ctx, s.indexKey, key)
		return nil
	})
	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]imagecache.Object, error) {
	members, err := s.client.ZRangeWithScores(ctx, s.indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index read failed: %w", err)
	}
	keys := make([]string, 0, len(members))
	times := make([]time.Time, 0, len(members))
	for _, m := range members {
		k, ok := m.Member.(string)
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		keys = append(keys, k)
		times = append(times, time.UnixMilli(int64(m.Score)))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	lens := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		lens[i] = pipe.StrLen(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis size read failed: %w", err)
	}

	out := make([]imagecache.Object, 0, len(keys))
	for i, k := range keys {
		n := lens[i].Val()
		if n == 0 {
			// value expired or was removed outside this store
			_ = s.client.ZRem(ctx, s.indexKey, k).Err()
			continue
		}
		out = append(out, imagecache.Object{Key: k, Size: n, ModTime: times[i]})
	}
	return out, nil
}

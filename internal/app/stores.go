package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"elementx/internal/cache/disk"
	"elementx/internal/cache/memory"
	"elementx/internal/cache/postgres"
	"elementx/internal/cache/redisstore"
	"elementx/internal/cache/s3"
	"elementx/internal/config"
	"elementx/internal/imagecache"
)

type closeFunc func() error

// initBackend picks the storage engine named by CACHE_BACKEND. Connection
// failures degrade to the in-memory store so the service still starts.
func initBackend(ctx context.Context, cfg config.CacheConfig, log *zap.Logger) (imagecache.Backend, closeFunc, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	b, closer, err := openBackend(ctx, name, cfg)
	if err == nil {
		log.Info("image cache backend ready", zap.String("backend", name))
		return b, closer, nil
	}
	if _, known := backendNames[name]; !known {
		return nil, nil, err
	}
	log.Warn("image cache backend unavailable, using in-memory store",
		zap.String("backend", name), zap.Error(err))
	return memory.NewStore(0), nil, nil
}

var backendNames = map[string]struct{}{
	"memory": {}, "disk": {}, "postgres": {}, "s3": {}, "redis": {},
}

func openBackend(ctx context.Context, name string, cfg config.CacheConfig) (imagecache.Backend, closeFunc, error) {
	switch name {
	case "memory", "":
		return memory.NewStore(0), nil, nil
	case "disk":
		s, err := disk.NewStore(disk.Config{Root: cfg.DiskRoot})
		if err != nil {
			return nil, nil, fmt.Errorf("open disk cache: %w", err)
		}
		return s, nil, nil
	case "postgres":
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, nil, fmt.Errorf("CACHE_PG_DSN is required for the postgres backend")
		}
		s, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres cache: %w", err)
		}
		return s, s.Close, nil
	case "s3":
		s, err := s3.NewStore(s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 cache: %w", err)
		}
		return s, nil, nil
	case "redis":
		s, err := redisstore.NewStore(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			IndexKey: cfg.Redis.IndexKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis cache: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("ping redis cache: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", name)
	}
}

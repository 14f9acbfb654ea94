package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"elementx/internal/cache/memory"
	"elementx/internal/config"
	"elementx/internal/httpapi"
	"elementx/internal/imagecache"
	"elementx/internal/imagegen"
	"elementx/internal/imaging/queue"
	"elementx/internal/imaging/resolver"
	"elementx/internal/logging"
	"elementx/internal/metrics"
	"elementx/internal/textgen"
)

type App struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	cache    *imagecache.Cache
	queue    *queue.Queue
	resolver *resolver.Resolver
	handler  http.Handler
	server   *httpapi.Server
	closers  []closeFunc
}

// New wires config -> backend -> cache -> generator -> queue -> resolver ->
// HTTP. A missing or rejected credential yields offline mode, not an error.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	log = logging.OrNop(log)
	m := metrics.New()
	a := &App{log: log, metrics: m}

	backend, closer, err := initBackend(ctx, cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init cache backend: %w", err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	cacheCfg := imagecache.Config{
		Namespace:  cfg.Cache.Namespace,
		Version:    cfg.Cache.Version,
		MaxBytes:   cfg.Cache.MaxBytes,
		HotEntries: cfg.Cache.HotEntries,
	}
	cache, err := imagecache.Open(ctx, backend, cacheCfg, log, m)
	if err != nil {
		log.Warn("image cache index unreadable, using in-memory store", zap.Error(err))
		if cache, err = imagecache.Open(ctx, memory.NewStore(0), cacheCfg, log, m); err != nil {
			return nil, fmt.Errorf("failed to open image cache: %w", err)
		}
	}
	a.cache = cache

	opts := resolver.Options{Cache: cache, Log: log, Metrics: m}
	var inspector httpapi.QueueInspector
	if gen := newGenerator(ctx, cfg, log); gen != nil {
		a.queue = queue.New(gen, queue.Config{
			InterJobDelay: cfg.Queue.Delay,
			Cooldown:      cfg.Queue.Cooldown,
			CallTimeout:   cfg.Queue.CallTimeout,
		}, log, m)
		opts.Queue = a.queue
		opts.Online = true
		inspector = a.queue
	}
	a.resolver = resolver.New(opts)

	text := newTextClient(ctx, cfg, log)
	a.handler = httpapi.NewRouter(httpapi.NewHandler(a.resolver, inspector, text, log), m, log)
	a.server = httpapi.NewServer(cfg.Port, a.handler, log)

	log.Info("image service configured",
		zap.Bool("online", a.resolver.Online()),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int64("cache_max_bytes", cache.MaxBytes()),
		zap.Int("cache_entries", cache.Len()),
		zap.Duration("queue_delay", cfg.Queue.Delay),
		zap.Duration("queue_cooldown", cfg.Queue.Cooldown))
	return a, nil
}

func newGenerator(ctx context.Context, cfg *config.Config, log *zap.Logger) imagegen.Generator {
	if !cfg.Online() {
		log.Info("no API key configured, image generation disabled")
		return nil
	}
	gen, err := imagegen.NewGeminiClient(ctx, cfg.APIKey, cfg.ImageModel, log)
	if err != nil {
		log.Warn("image generator unavailable, running offline", zap.Error(err))
		return nil
	}
	return gen
}

func newTextClient(ctx context.Context, cfg *config.Config, log *zap.Logger) textgen.Client {
	if !cfg.Online() {
		return textgen.Unavailable{}
	}
	cli, err := textgen.NewGeminiClient(ctx, cfg.APIKey, cfg.TextModel, log)
	if err != nil {
		log.Warn("text generator unavailable", zap.Error(err))
		return textgen.Unavailable{}
	}
	return textgen.Wrap(cli, textgen.Retry(3, time.Second, log))
}

// Handler is the fully wired HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Resolver() *resolver.Resolver { return a.resolver }

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops the HTTP server, then resolves every queued job and closes
// storage.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if a.queue != nil {
		if err := a.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue close: %w", err))
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

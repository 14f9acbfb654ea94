package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string
	// APIKey gates remote generation; empty means offline mode.
	APIKey     string
	ImageModel string
	TextModel  string
	Queue      QueueConfig
	Cache      CacheConfig
}

type QueueConfig struct {
	Delay       time.Duration
	Cooldown    time.Duration
	CallTimeout time.Duration
}

type CacheConfig struct {
	Backend     string
	Namespace   string
	Version     string
	MaxBytes    int64
	HotEntries  int
	DiskRoot    string
	PostgresDSN string
	S3          S3Config
	Redis       RedisConfig
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	IndexKey string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads .env (when present), the process environment and the -port flag.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	return FromEnv(os.LookupEnv, *port)
}

// FromEnv builds a Config from lookup. defaultPort is used when PORT is unset.
func FromEnv(lookup LookupFunc, defaultPort string) (*Config, error) {
	r := reader{lookup: lookup}

	port := defaultPort
	if envPort := r.str("PORT", ""); envPort != "" {
		port = envPort
	}
	if port != "" && !strings.Contains(port, ":") {
		port = ":" + port
	}

	env := r.str("APP_ENV", "local")
	cfg := &Config{
		Port:       port,
		Env:        env,
		LogLevel:   r.str("LOG_LEVEL", ""),
		APIKey:     firstNonEmpty(r.str("API_KEY", ""), r.str("GEMINI_API_KEY", "")),
		ImageModel: r.str("IMAGE_MODEL", "gemini-2.5-flash-image"),
		TextModel:  r.str("TEXT_MODEL", "gemini-2.5-flash"),
		Queue: QueueConfig{
			Delay:       r.duration("IMAGE_QUEUE_DELAY", 2*time.Second),
			Cooldown:    r.duration("IMAGE_QUEUE_COOLDOWN", 30*time.Second),
			CallTimeout: r.duration("IMAGE_CALL_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			Backend:     strings.ToLower(r.str("CACHE_BACKEND", "disk")),
			Namespace:   r.str("CACHE_NAMESPACE", "elementx_img"),
			Version:     r.str("CACHE_VERSION", "v1"),
			MaxBytes:    r.integer("CACHE_MAX_BYTES", 4*1024*1024),
			HotEntries:  int(r.integer("CACHE_HOT_ENTRIES", 256)),
			DiskRoot:    r.str("CACHE_DISK_ROOT", "tmp/image-cache"),
			PostgresDSN: r.str("CACHE_PG_DSN", ""),
			S3:          loadS3Config(&r, env),
			Redis: RedisConfig{
				Addr:     r.str("CACHE_REDIS_ADDR", "127.0.0.1:6379"),
				Password: r.str("CACHE_REDIS_PASSWORD", ""),
				DB:       int(r.integer("CACHE_REDIS_DB", 0)),
				IndexKey: r.str("CACHE_REDIS_INDEX_KEY", "elementx:image-cache:index"),
			},
		},
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Online reports whether a credential for remote generation is configured.
func (c *Config) Online() bool { return strings.TrimSpace(c.APIKey) != "" }

func loadS3Config(r *reader, env string) S3Config {
	local := strings.EqualFold(env, "local")
	endpoint := r.str("CACHE_S3_ENDPOINT", "")
	if local && endpoint == "" {
		endpoint = "minio:9000"
	}
	useSSL := r.boolean("CACHE_S3_USE_SSL", !local)
	return S3Config{
		Endpoint:  endpoint,
		Region:    r.str("CACHE_S3_REGION", "us-east-1"),
		AccessKey: firstNonEmpty(r.str("CACHE_S3_ACCESS_KEY", ""), r.str("MINIO_ROOT_USER", "")),
		SecretKey: firstNonEmpty(r.str("CACHE_S3_SECRET_KEY", ""), r.str("MINIO_ROOT_PASSWORD", "")),
		Bucket:    r.str("CACHE_S3_BUCKET", "elementx-image-cache"),
		UseSSL:    useSSL,
	}
}

type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) str(key, def string) string {
	if r.lookup == nil {
		return def
	}
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// bare integers are milliseconds
		ms, intErr := strconv.ParseInt(raw, 10, 64)
		if intErr != nil {
			r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
			return def
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d < 0 {
		r.errs = append(r.errs, fmt.Errorf("config: %s must not be negative", key))
		return def
	}
	return d
}

func (r *reader) integer(key string, def int64) int64 {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return v
}

func (r *reader) boolean(key string, def bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Package config centralizes how Image2Doc reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the gateway, the cleanup
// worker, and the CLI. Optional integrations (Postgres history, Redis
// language cache) stay disabled when their settings are empty.
type Config struct {
	Address string

	// Backend is the base URL of the external OCR service.
	Backend        string
	RequestTimeout time.Duration

	MaxFileSize  int64
	AllowedTypes []string
	MaxNameLen   int

	DefaultFormat   string
	DefaultLanguage string

	// QueuePacing is the fixed delay between consecutive conversion queue
	// items.
	QueuePacing time.Duration

	SigningSecret []byte
	SignedURLTTL  time.Duration

	// BlobBackend selects where file bytes live: "memory" or "s3".
	BlobBackend string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
	Bucket      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LanguageTTL   time.Duration

	DatabaseURL string

	// Retention is how long converted artifacts are kept before the
	// cleanup worker deletes them.
	Retention time.Duration

	PrefsPath string
}

const (
	defaultAddress      = ":8080"
	defaultBackend      = "http://127.0.0.1:8000"
	defaultTimeout      = 60 * time.Second
	defaultMaxFileSize  = 10 << 20 // 10 MiB
	defaultAllowedTypes = "image/jpeg,image/png,image/gif,image/webp,image/bmp,image/tiff"
	defaultMaxNameLen   = 100
	defaultFormat       = "docx"
	defaultLanguage     = "spa"
	defaultPacing       = time.Second
	defaultSignedTTL    = 5 * time.Minute
	defaultBucket       = "image2doc"
	defaultLanguageTTL  = 15 * time.Minute
	defaultRetention    = 24 * time.Hour
)

// Load reads configuration from the environment, falling back to defaults.
// A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Address:         readEnv("IMAGE2DOC_ADDRESS", defaultAddress),
		Backend:         strings.TrimRight(readEnv("IMAGE2DOC_BACKEND_URL", defaultBackend), "/"),
		RequestTimeout:  parseDuration("IMAGE2DOC_REQUEST_TIMEOUT", defaultTimeout),
		MaxFileSize:     parseInt64("IMAGE2DOC_MAX_FILE_BYTES", defaultMaxFileSize),
		AllowedTypes:    parseList("IMAGE2DOC_ALLOWED_TYPES", defaultAllowedTypes),
		MaxNameLen:      parseInt("IMAGE2DOC_MAX_NAME_LEN", defaultMaxNameLen),
		DefaultFormat:   readEnv("IMAGE2DOC_DEFAULT_FORMAT", defaultFormat),
		DefaultLanguage: readEnv("IMAGE2DOC_DEFAULT_LANGUAGE", defaultLanguage),
		QueuePacing:     parseDuration("IMAGE2DOC_QUEUE_PACING", defaultPacing),
		SigningSecret:   parseSecret("IMAGE2DOC_SIGNING_SECRET"),
		SignedURLTTL:    parseDuration("IMAGE2DOC_SIGNED_TTL", defaultSignedTTL),
		BlobBackend:     readEnv("IMAGE2DOC_BLOB_BACKEND", "memory"),
		S3Endpoint:      readEnv("IMAGE2DOC_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:     readEnv("IMAGE2DOC_S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:     readEnv("IMAGE2DOC_S3_SECRET_KEY", "minioadmin"),
		S3UseSSL:        parseBool("IMAGE2DOC_S3_USE_SSL", false),
		S3Region:        readEnv("IMAGE2DOC_S3_REGION", "us-east-1"),
		Bucket:          readEnv("IMAGE2DOC_BUCKET", defaultBucket),
		RedisAddr:       readEnv("IMAGE2DOC_REDIS_ADDR", ""),
		RedisPassword:   readEnv("IMAGE2DOC_REDIS_PASSWORD", ""),
		RedisDB:         parseInt("IMAGE2DOC_REDIS_DB", 0),
		LanguageTTL:     parseDuration("IMAGE2DOC_LANGUAGE_TTL", defaultLanguageTTL),
		DatabaseURL:     readEnv("IMAGE2DOC_DATABASE_URL", ""),
		Retention:       parseDuration("IMAGE2DOC_RETENTION", defaultRetention),
		PrefsPath:       readEnv("IMAGE2DOC_PREFS_PATH", ""),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.MaxNameLen <= 0 {
		cfg.MaxNameLen = defaultMaxNameLen
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.QueuePacing < 0 {
		cfg.QueuePacing = defaultPacing
	}
	return cfg, nil
}

// HistoryEnabled reports whether the Postgres conversion history is
// configured.
func (c *Config) HistoryEnabled() bool { return c.DatabaseURL != "" }

// CacheEnabled reports whether the Redis language cache is configured.
func (c *Config) CacheEnabled() bool { return c.RedisAddr != "" }

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte("image2doc-fallback-secret")
	}
	return buf
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are sourced from APP_-prefixed environment variables, with
// sensible defaults where appropriate.
type Config struct {
	ListenAddr string

	DatabaseURL string

	// RetentionDays is the maximum age (in days) an activity record may
	// reach before it becomes eligible for deletion.
	RetentionDays int

	// KV (Redis) coordinates. ReplicaURL may be empty, in which case the
	// writer connection also serves reads. When SentinelAddrs is set the
	// writer resolves through Sentinel instead of dialing WriterURL.
	KVWriterURL      string
	KVReplicaURL     string
	KVSentinelAddrs  []string
	KVSentinelMaster string

	// JWTSecret signs and verifies HS256 tokens.
	JWTSecret string
	// EncryptionKeyHex is 64 hex chars (32 raw bytes) used for AES-256-GCM
	// encryption of the recoverable API key copy.
	EncryptionKeyHex string

	// DefaultRateLimit is the ceiling applied to callers that did not
	// request a custom one at registration.
	DefaultRateLimit int
	// RateLimitWindow is the sliding window length.
	RateLimitWindow time.Duration

	DailyCacheTTL time.Duration
	TopCacheTTL   time.Duration

	BatchSize       int
	BatchInterval   time.Duration
	OverflowMaxSize int
	OverflowMaxAge  time.Duration

	PrewarmOnStartup  bool
	PrewarmCronEnable bool

	HitTrackingEnabled bool
	HitTrackThreshold  int
}

// Load reads configuration from environment variables and applies
// sensible defaults for anything not set.
func Load() *Config {
	cfg := &Config{
		ListenAddr:         getenv("APP_LISTEN_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("APP_DATABASE_URL"),
		RetentionDays:      getenvInt("APP_RETENTION_DAYS", 30),
		KVWriterURL:        getenv("APP_KV_WRITER_URL", "redis://localhost:6379/0"),
		KVReplicaURL:       os.Getenv("APP_KV_REPLICA_URL"),
		KVSentinelAddrs:    getenvList("APP_KV_SENTINEL_ADDRS"),
		KVSentinelMaster:   getenv("APP_KV_SENTINEL_MASTER", "mymaster"),
		JWTSecret:          getenv("APP_JWT_SECRET", "dev-secret-change-me"),
		EncryptionKeyHex:   os.Getenv("APP_ENCRYPTION_KEY"),
		DefaultRateLimit:   getenvInt("APP_DEFAULT_RATE_LIMIT", 1000),
		RateLimitWindow:    getenvDuration("APP_RATE_LIMIT_WINDOW", time.Hour),
		DailyCacheTTL:      getenvDuration("APP_DAILY_CACHE_TTL", time.Hour),
		TopCacheTTL:        getenvDuration("APP_TOP_CACHE_TTL", time.Hour),
		BatchSize:          getenvInt("APP_BATCH_SIZE", 100),
		BatchInterval:      getenvDuration("APP_BATCH_INTERVAL", 5*time.Second),
		OverflowMaxSize:    getenvInt("APP_OVERFLOW_MAX_SIZE", 10_000),
		OverflowMaxAge:     getenvDuration("APP_OVERFLOW_MAX_AGE", time.Hour),
		PrewarmOnStartup:   getenvBool("APP_PREWARM_ON_STARTUP", true),
		PrewarmCronEnable:  getenvBool("APP_PREWARM_CRON_ENABLE", true),
		HitTrackingEnabled: getenvBool("APP_HIT_TRACKING_ENABLED", true),
		HitTrackThreshold:  getenvInt("APP_HIT_TRACK_THRESHOLD", 100),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

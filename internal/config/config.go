package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	CacheService  CacheServiceConfig
	Backend       BackendConfig
	Session       SessionConfig
	Identify      IdentifyConfig
	CacheStore    CacheStoreConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CacheServiceConfig holds the session cache service client configuration
type CacheServiceConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// BackendConfig holds the identity backend client configuration
type BackendConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// SessionConfig holds resolution and memoization configuration
type SessionConfig struct {
	// FreshnessWindow bounds how long the manager reuses a resolution.
	FreshnessWindow time.Duration
	// CacheTTL is the expiry handed to the cache service on writes.
	CacheTTL time.Duration
}

// IdentifyConfig holds durable local identification configuration
type IdentifyConfig struct {
	StatePath string
}

// CacheStoreConfig holds the cache service daemon's storage configuration
type CacheStoreConfig struct {
	// Backend selects the store: "memory", "redis" or "postgres".
	Backend string
	// AuthToken, when set, is required as a bearer token on every request.
	AuthToken string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBMaxConns int
	DBMinConns int

	CleanupInterval time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		CacheService: CacheServiceConfig{
			URL:     getEnv("CACHE_SERVICE_URL", "http://localhost:8090"),
			Token:   getEnv("CACHE_SERVICE_TOKEN", ""),
			Timeout: parseDuration("CACHE_SERVICE_TIMEOUT", "3s"),
		},
		Backend: BackendConfig{
			URL:     getEnv("BACKEND_URL", ""),
			APIKey:  getEnv("BACKEND_API_KEY", ""),
			Timeout: parseDuration("BACKEND_TIMEOUT", "8s"),
		},
		Session: SessionConfig{
			FreshnessWindow: parseDuration("SESSION_FRESHNESS_WINDOW", "5m"),
			CacheTTL:        parseDuration("SESSION_CACHE_TTL", "1h"),
		},
		Identify: IdentifyConfig{
			StatePath: getEnv("IDENTIFY_STATE_PATH", "data/identify.json"),
		},
		CacheStore: CacheStoreConfig{
			Backend:         getEnv("CACHE_BACKEND", "memory"),
			AuthToken:       getEnv("CACHED_AUTH_TOKEN", ""),
			RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:   getEnv("REDIS_PASSWORD", ""),
			RedisDB:         parseInt("REDIS_DB", 0),
			RedisKeyPrefix:  getEnv("REDIS_KEY_PREFIX", "openfav:session:"),
			DBHost:          getEnv("DB_HOST", "localhost"),
			DBPort:          getEnv("DB_PORT", "5432"),
			DBUser:          getEnv("DB_USER", "openfav"),
			DBPassword:      getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "openfav"),
			DBSSLMode:       getEnv("DB_SSLMODE", "disable"),
			DBMaxConns:      parseInt("DB_MAX_CONNS", 10),
			DBMinConns:      parseInt("DB_MIN_CONNS", 2),
			CleanupInterval: parseDuration("CACHE_CLEANUP_INTERVAL", "1h"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "sessiond"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	return cfg, nil
}

// ValidateGateway checks the fields the session gateway cannot run without.
func (c *Config) ValidateGateway() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.CacheService.URL == "" {
		return fmt.Errorf("CACHE_SERVICE_URL is required")
	}
	return nil
}

// ValidateCacheStore checks the fields the cache service daemon cannot run
// without for its selected backend.
func (c *Config) ValidateCacheStore() error {
	switch c.CacheStore.Backend {
	case "memory", "redis":
		return nil
	case "postgres":
		if c.CacheStore.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheStore.Backend)
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

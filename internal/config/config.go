package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SearchEngineBleve = "bleve"
	SearchEngineMongo = "mongo"

	CacheTypeRedis  = "redis"
	CacheTypeMemory = "memory"
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Search    SearchConfig
	Indexing  IndexingConfig
	Upstream  UpstreamConfig
	Schedules ScheduleConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    int // requests per minute per client IP
	// WorkerMetricsPort serves /metrics and /health from the worker process
	WorkerMetricsPort string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// DatabaseConfig points at the audit log database
type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type CacheConfig struct {
	Type            string
	RedisURL        string
	CleanupInterval time.Duration
}

type SearchConfig struct {
	Engine        string
	BlevePath     string
	MongoURI      string
	MongoDatabase string
}

type IndexingConfig struct {
	StoreBatchSize    int
	StoreMaxAttempts  int
	StoreRetryDelay   time.Duration
	DocumentChunkSize int
	SourcePageSize    int
	AuditBatchSize    int
}

type UpstreamConfig struct {
	DirectoriesURL   string
	OrganisationsURL string
	AccessURL        string
	DevicesURL       string
	Token            string
	Timeout          time.Duration
	RequestsPerSec   float64
	MaxRetries       uint64
}

// ScheduleConfig holds the cron expression for each job. "off" disables a job.
type ScheduleConfig struct {
	ReindexUsers     string
	UpdateUsersIndex string
	ReindexDevices   string
	UpdateAuditCache string
	TidyIndexes      string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          getEnv("ENV", "development"),
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RateLimit:    getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),

			WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9090"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
			Audience:  getEnv("JWT_AUDIENCE", ""),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "audit"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 1)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Cache: CacheConfig{
			Type:            strings.ToLower(getEnv("CACHE_TYPE", CacheTypeMemory)),
			RedisURL:        getEnv("REDIS_URL", ""),
			CleanupInterval: getEnvAsDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Search: SearchConfig{
			Engine:        strings.ToLower(getEnv("SEARCH_ENGINE", SearchEngineBleve)),
			BlevePath:     getEnv("BLEVE_PATH", ""),
			MongoURI:      getEnv("MONGO_URI", ""),
			MongoDatabase: getEnv("MONGO_DATABASE", "directory_search"),
		},
		Indexing: IndexingConfig{
			StoreBatchSize:    getEnvAsInt("INDEX_STORE_BATCH_SIZE", 40),
			StoreMaxAttempts:  getEnvAsInt("INDEX_STORE_MAX_ATTEMPTS", 3),
			StoreRetryDelay:   getEnvAsDuration("INDEX_STORE_RETRY_DELAY", 500*time.Millisecond),
			DocumentChunkSize: getEnvAsInt("INDEX_DOCUMENT_CHUNK_SIZE", 50),
			SourcePageSize:    getEnvAsInt("INDEX_SOURCE_PAGE_SIZE", 500),
			AuditBatchSize:    getEnvAsInt("AUDIT_BATCH_SIZE", 1000),
		},
		Upstream: UpstreamConfig{
			DirectoriesURL:   strings.TrimRight(getEnv("DIRECTORIES_URL", ""), "/"),
			OrganisationsURL: strings.TrimRight(getEnv("ORGANISATIONS_URL", ""), "/"),
			AccessURL:        strings.TrimRight(getEnv("ACCESS_URL", ""), "/"),
			DevicesURL:       strings.TrimRight(getEnv("DEVICES_URL", ""), "/"),
			Token:            getEnv("UPSTREAM_TOKEN", ""),
			Timeout:          getEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second),
			RequestsPerSec:   getEnvAsFloat("UPSTREAM_REQUESTS_PER_SECOND", 20),
			MaxRetries:       uint64(getEnvAsInt("UPSTREAM_MAX_RETRIES", 3)),
		},
		Schedules: ScheduleConfig{
			ReindexUsers:     getEnv("SCHEDULE_REINDEX_USERS", "0 2 * * *"),
			UpdateUsersIndex: getEnv("SCHEDULE_UPDATE_USERS_INDEX", "*/5 * * * *"),
			ReindexDevices:   getEnv("SCHEDULE_REINDEX_DEVICES", "30 2 * * *"),
			UpdateAuditCache: getEnv("SCHEDULE_UPDATE_AUDIT_CACHE", "*/2 * * * *"),
			TidyIndexes:      getEnv("SCHEDULE_TIDY_INDEXES", "0 4 * * *"),
		},
	}

	switch cfg.Search.Engine {
	case SearchEngineBleve:
	case SearchEngineMongo:
		if cfg.Search.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required when SEARCH_ENGINE=mongo")
		}
	default:
		return nil, fmt.Errorf("SEARCH_ENGINE must be %q or %q (got %q)", SearchEngineBleve, SearchEngineMongo, cfg.Search.Engine)
	}

	switch cfg.Cache.Type {
	case CacheTypeMemory:
	case CacheTypeRedis:
		if cfg.Cache.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when CACHE_TYPE=redis")
		}
	default:
		return nil, fmt.Errorf("CACHE_TYPE must be %q or %q (got %q)", CacheTypeRedis, CacheTypeMemory, cfg.Cache.Type)
	}

	if cfg.Indexing.StoreBatchSize < 1 || cfg.Indexing.DocumentChunkSize < 1 || cfg.Indexing.SourcePageSize < 1 {
		return nil, fmt.Errorf("indexing batch, chunk and page sizes must be positive")
	}

	return cfg, nil
}

// ValidateAPI checks settings only the HTTP API needs.
func (c *Config) ValidateAPI() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return validateJWTSecret(c.Auth.JWTSecret, c.Server.Env)
}

// ValidateUpstream checks settings needed by jobs that read upstream services.
func (c *Config) ValidateUpstream() error {
	missing := make([]string, 0)
	for name, v := range map[string]string{
		"DIRECTORIES_URL":   c.Upstream.DirectoriesURL,
		"ORGANISATIONS_URL": c.Upstream.OrganisationsURL,
		"ACCESS_URL":        c.Upstream.AccessURL,
		"DEVICES_URL":       c.Upstream.DevicesURL,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing upstream configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateDatabase checks settings needed by the audit cache job.
func (c *Config) ValidateDatabase() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	return nil
}

// SharedIndexes reports whether separate processes see the same indexes and
// pointers. Bleve indexes are owned by the process that opened them and the
// memory cache is private, so only mongo with redis qualifies.
func (c *Config) SharedIndexes() bool {
	return c.Search.Engine == SearchEngineMongo && c.Cache.Type == CacheTypeRedis
}

// ValidateSharedIndexes checks settings needed by the worker and the task CLI,
// which build indexes outside the API process.
func (c *Config) ValidateSharedIndexes() error {
	if c.SharedIndexes() {
		return nil
	}
	return fmt.Errorf("SEARCH_ENGINE=%s with CACHE_TYPE=%s keeps indexes inside one process; "+
		"use SEARCH_ENGINE=%s and CACHE_TYPE=%s, or let the api run the jobs",
		c.Search.Engine, c.Cache.Type, SearchEngineMongo, CacheTypeRedis)
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

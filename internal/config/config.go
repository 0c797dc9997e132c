// Package config loads the core's runtime configuration from a .env file
// and the process environment, applying the teacher's section-loader
// decomposition (one loadXConfig function per config group) and
// validating the result before any component starts.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mdvec-core/internal/errors"
	"mdvec-core/internal/logging"
)

// ServerConfig controls process-wide logging behavior. LogLevel accepts
// "silent" (in addition to the usual debug/info/warn/error/fatal) to
// suppress the core's logging entirely, for embedders that manage their
// own observability.
type ServerConfig struct {
	LogLevel  string
	LogFormat string // "json" or "text"
}

// DatabaseConfig points at the sync-state SQLite store (§6.4: "the store's
// path is a config parameter, not a network address").
type DatabaseConfig struct {
	Path           string
	BusyTimeoutMs  int
	MaxOpenConns   int
}

// QdrantConfig configures the vector index adapter's backing store.
type QdrantConfig struct {
	Host               string
	Port               int
	APIKey             string
	UseTLS             bool
	CollectionPrefix   string
	HealthCheckSeconds int
	RetryAttempts      int
	TimeoutSeconds     int
}

// ChunkingConfig controls the two-stage markdown splitter.
type ChunkingConfig struct {
	ChunkSize         int
	ChunkOverlap      int
	OverlapPercentage float64
	DefaultStrategy   string
}

// SyncConfig controls collection sync batching and concurrency.
type SyncConfig struct {
	BatchSize           int
	MaxConcurrentFiles  int
	PerFileTimeoutSec   int
	StateCacheCapacity  int
}

// ExpansionConfig controls context expansion of marginal search results.
type ExpansionConfig struct {
	SimilarityThreshold float64
	MaxNeighbors        int
	MaxExpansionDepth   int
	PerformanceBudgetMs int
}

// Config is the fully-resolved runtime configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Qdrant    QdrantConfig
	Chunking  ChunkingConfig
	Sync      SyncConfig
	Expansion ExpansionConfig
}

// DefaultConfig returns the baseline configuration before env overrides
// and validation, matching the spec's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Database: DatabaseConfig{
			Path:          "./mdvec-sync-state.db",
			BusyTimeoutMs: 5000,
			MaxOpenConns:  1,
		},
		Qdrant: QdrantConfig{
			Host:               "localhost",
			Port:               6334,
			UseTLS:             false,
			CollectionPrefix:   "",
			HealthCheckSeconds: 30,
			RetryAttempts:      3,
			TimeoutSeconds:     30,
		},
		Chunking: ChunkingConfig{
			ChunkSize:         1000,
			ChunkOverlap:      200,
			OverlapPercentage: 0.25,
			DefaultStrategy:   "auto",
		},
		Sync: SyncConfig{
			BatchSize:          50,
			MaxConcurrentFiles: 5,
			PerFileTimeoutSec:  300,
			StateCacheCapacity: 50,
		},
		Expansion: ExpansionConfig{
			SimilarityThreshold: 0.75,
			MaxNeighbors:        5,
			MaxExpansionDepth:   2,
			PerformanceBudgetMs: 50,
		},
	}
}

// LoadConfig loads a .env file (if present), layers an optional YAML
// config file named by MDVEC_CONFIG_FILE over DefaultConfig, applies
// environment overrides on top of that, and validates the result. Env
// vars win over the YAML file, which wins over the documented defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.KindInvalidInput, "failed to load .env file", err)
	}

	cfg := DefaultConfig()
	if path := os.Getenv("MDVEC_CONFIG_FILE"); path != "" {
		if err := applyYAMLFile(cfg, path); err != nil {
			return nil, err
		}
	}

	loadServerConfig(cfg)
	loadDatabaseConfig(cfg)
	loadQdrantConfig(cfg)
	loadChunkingConfig(cfg)
	loadSyncConfig(cfg)
	loadExpansionConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.SetDefaultLogger(logging.NewLoggerForLevel(cfg.Server.LogLevel))
	return cfg, nil
}

// yamlOverrides mirrors a subset of Config's settings with plain fields;
// a zero value means "not set", so a YAML document only needs to name the
// settings it wants to override.
type yamlOverrides struct {
	Server struct {
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Qdrant struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"qdrant"`
	Chunking struct {
		ChunkSize         int     `yaml:"chunk_size"`
		ChunkOverlap      int     `yaml:"chunk_overlap"`
		OverlapPercentage float64 `yaml:"overlap_percentage"`
	} `yaml:"chunking"`
}

// applyYAMLFile reads path and overlays any non-zero fields onto cfg.
func applyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.KindInvalidInput, "failed to read config file", err)
	}

	var overrides yamlOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return errors.Wrap(errors.KindInvalidInput, "failed to parse config file", err)
	}

	if overrides.Server.LogLevel != "" {
		cfg.Server.LogLevel = overrides.Server.LogLevel
	}
	if overrides.Server.LogFormat != "" {
		cfg.Server.LogFormat = overrides.Server.LogFormat
	}
	if overrides.Database.Path != "" {
		cfg.Database.Path = overrides.Database.Path
	}
	if overrides.Qdrant.Host != "" {
		cfg.Qdrant.Host = overrides.Qdrant.Host
	}
	if overrides.Qdrant.Port != 0 {
		cfg.Qdrant.Port = overrides.Qdrant.Port
	}
	if overrides.Chunking.ChunkSize != 0 {
		cfg.Chunking.ChunkSize = overrides.Chunking.ChunkSize
	}
	if overrides.Chunking.ChunkOverlap != 0 {
		cfg.Chunking.ChunkOverlap = overrides.Chunking.ChunkOverlap
	}
	if overrides.Chunking.OverlapPercentage != 0 {
		cfg.Chunking.OverlapPercentage = overrides.Chunking.OverlapPercentage
	}
	return nil
}

// Validate enforces the spec's startup-time InvalidInput constraints so
// malformed configuration fails fast rather than surfacing later as
// per-file sync errors.
func (c *Config) Validate() error {
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return errors.InvalidInput("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Chunking.OverlapPercentage < 0.20 || c.Chunking.OverlapPercentage > 0.30 {
		return errors.InvalidInput("overlap_percentage (%.2f) must be within [0.20, 0.30]",
			c.Chunking.OverlapPercentage)
	}
	if c.Sync.MaxConcurrentFiles < 1 {
		return errors.InvalidInput("max_concurrent_files must be at least 1, got %d", c.Sync.MaxConcurrentFiles)
	}
	if c.Expansion.MaxNeighbors < 0 {
		return errors.InvalidInput("max_neighbors must not be negative, got %d", c.Expansion.MaxNeighbors)
	}
	return nil
}

func loadServerConfig(cfg *Config) {
	cfg.Server.LogLevel = getStringEnvWithDefault("MDVEC_LOG_LEVEL", cfg.Server.LogLevel)
	cfg.Server.LogFormat = getStringEnvWithDefault("MDVEC_LOG_FORMAT", cfg.Server.LogFormat)
}

func loadDatabaseConfig(cfg *Config) {
	cfg.Database.Path = getStringEnvWithFallback("MDVEC_DB_PATH", "DATABASE_PATH", cfg.Database.Path)
	cfg.Database.BusyTimeoutMs = getIntEnvWithDefault("MDVEC_DB_BUSY_TIMEOUT_MS", cfg.Database.BusyTimeoutMs)
	cfg.Database.MaxOpenConns = getIntEnvWithDefault("MDVEC_DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
}

func loadQdrantConfig(cfg *Config) {
	loadQdrantConnectionSettings(cfg)
	loadQdrantServiceSettings(cfg)
}

func loadQdrantConnectionSettings(cfg *Config) {
	cfg.Qdrant.Host = getStringEnvWithFallback("MDVEC_QDRANT_HOST", "QDRANT_HOST", cfg.Qdrant.Host)
	cfg.Qdrant.Port = getIntEnvWithFallback("MDVEC_QDRANT_PORT", "QDRANT_PORT", cfg.Qdrant.Port)
	cfg.Qdrant.APIKey = getStringEnvWithFallback("MDVEC_QDRANT_API_KEY", "QDRANT_API_KEY", cfg.Qdrant.APIKey)
	cfg.Qdrant.UseTLS = getBoolEnvWithFallback("MDVEC_QDRANT_USE_TLS", "QDRANT_USE_TLS", cfg.Qdrant.UseTLS)
	cfg.Qdrant.CollectionPrefix = getStringEnvWithDefault("MDVEC_QDRANT_COLLECTION_PREFIX", cfg.Qdrant.CollectionPrefix)
}

func loadQdrantServiceSettings(cfg *Config) {
	cfg.Qdrant.HealthCheckSeconds = getIntEnvWithDefault("MDVEC_QDRANT_HEALTH_CHECK_SECONDS", cfg.Qdrant.HealthCheckSeconds)
	cfg.Qdrant.RetryAttempts = getIntEnvWithDefault("MDVEC_QDRANT_RETRY_ATTEMPTS", cfg.Qdrant.RetryAttempts)
	cfg.Qdrant.TimeoutSeconds = getIntEnvWithDefault("MDVEC_QDRANT_TIMEOUT_SECONDS", cfg.Qdrant.TimeoutSeconds)
}

func loadChunkingConfig(cfg *Config) {
	cfg.Chunking.ChunkSize = getIntEnvWithDefault("MDVEC_CHUNK_SIZE", cfg.Chunking.ChunkSize)
	cfg.Chunking.ChunkOverlap = getIntEnvWithDefault("MDVEC_CHUNK_OVERLAP", cfg.Chunking.ChunkOverlap)
	cfg.Chunking.OverlapPercentage = getFloatEnvWithDefault("MDVEC_OVERLAP_PERCENTAGE", cfg.Chunking.OverlapPercentage)
	cfg.Chunking.DefaultStrategy = getStringEnvWithDefault("MDVEC_CHUNKING_STRATEGY", cfg.Chunking.DefaultStrategy)
}

func loadSyncConfig(cfg *Config) {
	cfg.Sync.BatchSize = getIntEnvWithDefault("MDVEC_SYNC_BATCH_SIZE", cfg.Sync.BatchSize)
	cfg.Sync.MaxConcurrentFiles = getIntEnvWithDefault("MDVEC_SYNC_MAX_CONCURRENT_FILES", cfg.Sync.MaxConcurrentFiles)
	cfg.Sync.PerFileTimeoutSec = getIntEnvWithDefault("MDVEC_SYNC_PER_FILE_TIMEOUT_SEC", cfg.Sync.PerFileTimeoutSec)
	cfg.Sync.StateCacheCapacity = getIntEnvWithDefault("MDVEC_SYNC_STATE_CACHE_CAPACITY", cfg.Sync.StateCacheCapacity)
}

func loadExpansionConfig(cfg *Config) {
	cfg.Expansion.SimilarityThreshold = getFloatEnvWithDefault("MDVEC_EXPANSION_SIMILARITY_THRESHOLD", cfg.Expansion.SimilarityThreshold)
	cfg.Expansion.MaxNeighbors = getIntEnvWithDefault("MDVEC_EXPANSION_MAX_NEIGHBORS", cfg.Expansion.MaxNeighbors)
	cfg.Expansion.MaxExpansionDepth = getIntEnvWithDefault("MDVEC_EXPANSION_MAX_DEPTH", cfg.Expansion.MaxExpansionDepth)
	cfg.Expansion.PerformanceBudgetMs = getIntEnvWithDefault("MDVEC_EXPANSION_BUDGET_MS", cfg.Expansion.PerformanceBudgetMs)
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getStringEnvWithFallback checks primary first, then legacy, before
// falling back to current, matching the teacher's dual-env-var migration
// pattern for renamed configuration keys.
func getStringEnvWithFallback(primary, legacy, current string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	if val := os.Getenv(legacy); val != "" {
		return val
	}
	return current
}

func getIntEnvWithFallback(primary, legacy string, current int) int {
	if val := os.Getenv(primary); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	if val := os.Getenv(legacy); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return current
}

func getBoolEnvWithFallback(primary, legacy string, current bool) bool {
	if val := os.Getenv(primary); val != "" {
		return parseBool(val, current)
	}
	if val := os.Getenv(legacy); val != "" {
		return parseBool(val, current)
	}
	return current
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return n
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func parseBool(val string, defaultValue bool) bool {
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

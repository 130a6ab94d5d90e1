package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Merge         MergeConfig         `yaml:"merge"`
	Auth          AuthConfig          `yaml:"auth"`
	Ranking       RankingConfig       `yaml:"ranking"`
	Capacity      CapacityConfig      `yaml:"capacity"`
	Deduplication DeduplicationConfig `yaml:"deduplication"`
	Worker        WorkerConfig        `yaml:"worker"`
	Log           LogConfig           `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig contains embedding service settings.
type EmbeddingConfig struct {
	APIKey     string   `yaml:"-"` // env-only, never in YAML
	Model      string   `yaml:"model"`
	Dimensions int      `yaml:"dimensions"`
	Timeout    Duration `yaml:"timeout"`
}

// MergeConfig contains LLM merge settings for deduplication.
type MergeConfig struct {
	Enabled bool     `yaml:"enabled"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// RankingConfig contains similarity ranking settings.
//
// SimilarityBlend and WeightBlend control the score mix
// (cosine * SimilarityBlend + effective_weight * WeightBlend); they are
// configuration rather than hard-coded because the split is heuristic.
// LaplacePrior is the add-N smoothing applied to the helpfulness ratio.
type RankingConfig struct {
	SimilarityBlend   float64  `yaml:"similarity_blend"`
	WeightBlend       float64  `yaml:"weight_blend"`
	LaplacePrior      float64  `yaml:"laplace_prior"`
	SearchLimit       int      `yaml:"search_limit"`
	VectorCacheTTL    Duration `yaml:"vector_cache_ttl"`
	QueryPrefixLength int      `yaml:"query_prefix_length"`
}

// CapacityConfig contains per-group capacity settings.
type CapacityConfig struct {
	MaxPerGroup int `yaml:"max_per_group"`
}

// DeduplicationConfig contains semantic deduplication settings.
type DeduplicationConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	BatchLimit          int     `yaml:"batch_limit"`
	MinGroupSize        int     `yaml:"min_group_size"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	DedupInterval             Duration `yaml:"dedup_interval"`
	EmbeddingRetryInterval    Duration `yaml:"embedding_retry_interval"`
	EmbeddingRetryMaxAttempts int      `yaml:"embedding_retry_max_attempts"`
	EmbeddingRetryBatchSize   int      `yaml:"embedding_retry_batch_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("EXEMPLAR_CONFIG_PATH", "config/exemplar.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/exemplar.db",
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    Duration(30 * time.Second),
		},
		Merge: MergeConfig{
			Enabled: true,
			Model:   "gpt-4o-mini",
			Timeout: Duration(60 * time.Second),
		},
		Ranking: RankingConfig{
			SimilarityBlend:   0.8,
			WeightBlend:       0.2,
			LaplacePrior:      1.0,
			SearchLimit:       100,
			VectorCacheTTL:    Duration(120 * time.Second),
			QueryPrefixLength: 80,
		},
		Capacity: CapacityConfig{
			MaxPerGroup: 500,
		},
		Deduplication: DeduplicationConfig{
			SimilarityThreshold: 0.85,
			BatchLimit:          200,
			MinGroupSize:        10,
		},
		Worker: WorkerConfig{
			DedupInterval:             Duration(6 * time.Hour),
			EmbeddingRetryInterval:    Duration(5 * time.Minute),
			EmbeddingRetryMaxAttempts: 10,
			EmbeddingRetryBatchSize:   50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("EXEMPLAR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("EXEMPLAR_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("EXEMPLAR_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("EXEMPLAR_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("EXEMPLAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Embedding (OPENAI_API_KEY is industry convention)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("EXEMPLAR_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("EXEMPLAR_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}

	// Merge
	if v := os.Getenv("EXEMPLAR_MERGE_ENABLED"); v != "" {
		cfg.Merge.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("EXEMPLAR_MERGE_MODEL"); v != "" {
		cfg.Merge.Model = v
	}

	// Auth
	if v := os.Getenv("EXEMPLAR_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Ranking
	if v := os.Getenv("EXEMPLAR_SIMILARITY_BLEND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.SimilarityBlend = f
		}
	}
	if v := os.Getenv("EXEMPLAR_WEIGHT_BLEND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ranking.WeightBlend = f
		}
	}
	if v := os.Getenv("EXEMPLAR_SEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ranking.SearchLimit = n
		}
	}
	if v := os.Getenv("EXEMPLAR_VECTOR_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ranking.VectorCacheTTL = Duration(d)
		}
	}

	// Capacity
	if v := os.Getenv("EXEMPLAR_MAX_PER_GROUP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Capacity.MaxPerGroup = n
		}
	}

	// Deduplication
	if v := os.Getenv("EXEMPLAR_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Deduplication.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("EXEMPLAR_DEDUP_BATCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deduplication.BatchLimit = n
		}
	}
	if v := os.Getenv("EXEMPLAR_DEDUP_MIN_GROUP_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deduplication.MinGroupSize = n
		}
	}

	// Worker
	if v := os.Getenv("EXEMPLAR_DEDUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.DedupInterval = Duration(d)
		}
	}
	if v := os.Getenv("EXEMPLAR_EMBEDDING_RETRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.EmbeddingRetryInterval = Duration(d)
		}
	}
	if v := os.Getenv("EXEMPLAR_EMBEDDING_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.EmbeddingRetryMaxAttempts = n
		}
	}
	if v := os.Getenv("EXEMPLAR_EMBEDDING_RETRY_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.EmbeddingRetryBatchSize = n
		}
	}

	// Log
	if v := os.Getenv("EXEMPLAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EXEMPLAR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (EXEMPLAR_DEV_MODE=true), API key validation is skipped.
//
// An absent OPENAI_API_KEY is allowed: the engine degrades to weight-based
// retrieval and skips deduplication, so only the auth key is hard-required.
func (c *Config) validate() error {
	if c.Ranking.SimilarityBlend < 0 || c.Ranking.WeightBlend < 0 {
		return errors.New("ranking blend factors must be non-negative")
	}
	if c.Deduplication.SimilarityThreshold <= 0 || c.Deduplication.SimilarityThreshold > 1 {
		return errors.New("deduplication similarity_threshold must be in (0, 1]")
	}
	if c.Capacity.MaxPerGroup <= 0 {
		return errors.New("capacity max_per_group must be positive")
	}

	if os.Getenv("EXEMPLAR_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("EXEMPLAR_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

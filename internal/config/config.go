// Package config provides configuration loading for tracelens.
//
// Configuration is read from an optional YAML file and overridden by
// TRACELENS_* environment variables. Missing values fall back to defaults
// applied by applyDefaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete tracelens configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Analysis    AnalysisConfig    `koanf:"analysis"`
	Index       IndexConfig       `koanf:"index"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Advisor     AdvisorConfig     `koanf:"advisor"`
	Persistence PersistenceConfig `koanf:"persistence"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Secrets     SecretsConfig     `koanf:"secrets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	BodyLimit       string   `koanf:"body_limit"`
	CORSOrigins     []string `koanf:"cors_origins"`

	// RequestsPerMinute limits each client IP. Negative disables limiting.
	RequestsPerMinute int `koanf:"requests_per_minute"`

	// HealthTimeout bounds the remote store check behind /health.
	HealthTimeout Duration `koanf:"health_timeout"`
}

// AnalysisConfig controls the analysis pipeline.
type AnalysisConfig struct {
	MaxTraceSize int `koanf:"max_trace_size"`
	TopK         int `koanf:"top_k"`
	// StageTimeout bounds each concurrent stage. Zero disables the bound.
	StageTimeout   Duration `koanf:"stage_timeout"`
	AdviceTimeout  Duration `koanf:"advice_timeout"`
	PersistTimeout Duration `koanf:"persist_timeout"`
}

// IndexConfig selects and locates the similarity index.
type IndexConfig struct {
	Backend     string   `koanf:"backend"` // flat or chromem
	Path        string   `koanf:"path"`    // base path for the saved flat index pair
	CorpusPath  string   `koanf:"corpus_path"`
	ChromemPath string   `koanf:"chromem_path"`
	Collection  string   `koanf:"collection"`
	Watch       bool     `koanf:"watch"`
	WatchDelay  Duration `koanf:"watch_delay"`
}

// EmbeddingsConfig selects the text encoder.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // fastembed, tei or openai
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// AdvisorConfig selects the fix advisor.
type AdvisorConfig struct {
	Provider   string  `koanf:"provider"` // catalog, openai or ollama
	Model      string  `koanf:"model"`
	BaseURL    string  `koanf:"base_url"`
	APIKey     Secret  `koanf:"api_key"`
	RateLimit  float64 `koanf:"rate_limit"` // requests per second
	MaxRetries int     `koanf:"max_retries"`
}

// PersistenceConfig controls the analysis log and the remote store.
type PersistenceConfig struct {
	LogPath     string   `koanf:"log_path"`
	DatabaseURL Secret   `koanf:"database_url"`
	Table       string   `koanf:"table"`
	MaxAttempts int      `koanf:"max_attempts"`
	Backoff     Duration `koanf:"backoff"`
}

// LoggingConfig is the subset of logging settings exposed in the file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// OTEL also exports log records through the telemetry collector.
	OTEL bool `koanf:"otel"`
}

// TelemetryConfig is the subset of telemetry settings exposed in the file.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// SecretsConfig configures secret scrubbing of traces.
type SecretsConfig struct {
	Disabled bool `koanf:"disabled"`
	// Engine is "regex" (built-in rules) or "gitleaks".
	Engine string `koanf:"engine"`
	// AllowListPath names a TOML file of patterns exempt from redaction.
	AllowListPath string `koanf:"allowlist_path"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Analysis.MaxTraceSize <= 0 {
		return fmt.Errorf("analysis.max_trace_size must be positive, got %d", c.Analysis.MaxTraceSize)
	}
	if c.Analysis.TopK <= 0 {
		return fmt.Errorf("analysis.top_k must be positive, got %d", c.Analysis.TopK)
	}
	switch c.Index.Backend {
	case "flat", "chromem":
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}
	switch c.Advisor.Provider {
	case "catalog", "openai", "ollama":
	default:
		return fmt.Errorf("unknown advisor provider %q", c.Advisor.Provider)
	}
	switch c.Secrets.Engine {
	case "regex", "gitleaks":
	default:
		return fmt.Errorf("unknown secrets engine %q", c.Secrets.Engine)
	}
	if c.Persistence.LogPath == "" {
		return errors.New("persistence.log_path is required")
	}
	if c.Persistence.MaxAttempts <= 0 {
		return fmt.Errorf("persistence.max_attempts must be positive, got %d", c.Persistence.MaxAttempts)
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8001
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.BodyLimit == "" {
		cfg.Server.BodyLimit = "1M"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.RequestsPerMinute == 0 {
		cfg.Server.RequestsPerMinute = 100
	}
	if cfg.Server.HealthTimeout == 0 {
		cfg.Server.HealthTimeout = Duration(3 * time.Second)
	}

	if cfg.Analysis.MaxTraceSize == 0 {
		cfg.Analysis.MaxTraceSize = 50000
	}
	if cfg.Analysis.TopK == 0 {
		cfg.Analysis.TopK = 3
	}
	if cfg.Analysis.AdviceTimeout == 0 {
		cfg.Analysis.AdviceTimeout = Duration(60 * time.Second)
	}
	if cfg.Analysis.PersistTimeout == 0 {
		cfg.Analysis.PersistTimeout = Duration(30 * time.Second)
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "flat"
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "data/traces"
	}
	if cfg.Index.ChromemPath == "" {
		cfg.Index.ChromemPath = "data/chromem"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "traces"
	}
	if cfg.Index.WatchDelay == 0 {
		cfg.Index.WatchDelay = Duration(2 * time.Second)
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.Advisor.Provider == "" {
		cfg.Advisor.Provider = "catalog"
	}
	if cfg.Advisor.RateLimit == 0 {
		cfg.Advisor.RateLimit = 2
	}
	if cfg.Advisor.MaxRetries == 0 {
		cfg.Advisor.MaxRetries = 2
	}

	if cfg.Persistence.LogPath == "" {
		cfg.Persistence.LogPath = "logs/trace_log.jsonl"
	}
	if cfg.Persistence.Table == "" {
		cfg.Persistence.Table = "trace_analyses"
	}
	if cfg.Persistence.MaxAttempts == 0 {
		cfg.Persistence.MaxAttempts = 3
	}
	if cfg.Persistence.Backoff == 0 {
		cfg.Persistence.Backoff = Duration(500 * time.Millisecond)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "tracelens"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Secrets.Engine == "" {
		cfg.Secrets.Engine = "regex"
	}
}

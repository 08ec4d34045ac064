package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"o3-search-mcp/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Server ServerConfig `yaml:"server"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
}

// OpenAIConfig holds the upstream Responses API settings.
type OpenAIConfig struct {
	APIKey            string               `yaml:"api_key"`
	BaseURL           string               `yaml:"base_url"`
	Model             string               `yaml:"model"`
	MaxRetries        int                  `yaml:"max_retries"`
	APITimeout        time.Duration        `yaml:"api_timeout"`
	SearchContextSize domain.Tier          `yaml:"search_context_size"`
	ReasoningEffort   domain.Tier          `yaml:"reasoning_effort"`
	RequestsPerMinute int                  `yaml:"requests_per_minute"` // 0 = unlimited
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	Pool              PoolConfig           `yaml:"pool"`
}

// CircuitBreakerConfig configures the optional upstream circuit breaker.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig sizes the outbound HTTP connection pool.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ServerConfig holds the MCP endpoint and process lifecycle settings.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	ProcessTimeout  time.Duration `yaml:"process_timeout"`  // 0 disables the cap
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // bound on transport close
	WorkerPoolSize  int           `yaml:"worker_pool_size"`
	QueueSize       int           `yaml:"queue_size"`
}

// LoggerConfig holds structured logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stderr or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stderr, noop
}

// Defaults returns a Config populated with the documented default values.
func Defaults() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "o3",
			MaxRetries:        3,
			APITimeout:        60 * time.Second,
			SearchContextSize: domain.TierMedium,
			ReasoningEffort:   domain.TierMedium,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Server: ServerConfig{
			Name:            "o3-search",
			Version:         "0.0.0-dev",
			ProcessTimeout:  5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			WorkerPoolSize:  5,
			QueueSize:       100,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads the YAML file at path (if any), applies environment overrides,
// decrypts "enc:" secrets and validates the result. A missing file is not an
// error: the environment alone is a complete configuration source.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("O3SEARCH_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read config: %w", domain.ErrConfigLoad, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parse config: %w", domain.ErrConfigLoad, err)
	}
	return nil
}

// ApplyEnvOverrides maps environment variables to config fields. Numeric
// values that fail to parse are ignored and the current value is kept.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.OpenAI.MaxRetries = n
		}
	}
	if v := os.Getenv("OPENAI_API_TIMEOUT"); v != "" {
		if d, ok := parseMillis(v); ok && d > 0 {
			cfg.OpenAI.APITimeout = d
		}
	}
	if v := os.Getenv("SEARCH_CONTEXT_SIZE"); v != "" {
		cfg.OpenAI.SearchContextSize = domain.Tier(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("REASONING_EFFORT"); v != "" {
		cfg.OpenAI.ReasoningEffort = domain.Tier(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("PROCESS_TIMEOUT"); v != "" {
		if d, ok := parseMillis(v); ok && d >= 0 {
			cfg.Server.ProcessTimeout = d
		}
	}
	if v := os.Getenv("O3SEARCH_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.OpenAI.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("O3SEARCH_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.OpenAI.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("O3SEARCH_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("O3SEARCH_WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("O3SEARCH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("O3SEARCH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("O3SEARCH_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("O3SEARCH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("O3SEARCH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// parseMillis parses a non-negative integer number of milliseconds.
func parseMillis(v string) (time.Duration, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 || n > maxMillis {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Group and other may read, never write or execute.
	if mode&0o033 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

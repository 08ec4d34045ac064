package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateOpenAI(cfg, ve)
	validateServer(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateOpenAI(cfg *Config, ve *ValidationError) {
	o := cfg.OpenAI
	if o.APIKey == "" {
		ve.Add("openai.api_key is required (set OPENAI_API_KEY)")
	}
	if strings.HasPrefix(o.APIKey, "enc:") {
		ve.Add("openai.api_key is encrypted but O3SEARCH_CONFIG_KEY is not set")
	}
	if o.Model == "" {
		ve.Add("openai.model must not be empty")
	}
	if u, err := url.Parse(o.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("openai.base_url %q is not an absolute URL", o.BaseURL)
	}
	if o.MaxRetries < 0 {
		ve.Add("openai.max_retries must be >= 0")
	}
	if o.APITimeout <= 0 {
		ve.Add("openai.api_timeout must be > 0")
	}
	if !o.SearchContextSize.Valid() {
		ve.Add("openai.search_context_size %q must be one of low, medium, high", o.SearchContextSize)
	}
	if !o.ReasoningEffort.Valid() {
		ve.Add("openai.reasoning_effort %q must be one of low, medium, high", o.ReasoningEffort)
	}
	if o.RequestsPerMinute < 0 {
		ve.Add("openai.requests_per_minute must be >= 0")
	}
	if o.CircuitBreaker.Enabled && o.CircuitBreaker.MaxFailures == 0 {
		ve.Add("openai.circuit_breaker.max_failures must be > 0 when the breaker is enabled")
	}
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if s.Name == "" {
		ve.Add("server.name must not be empty")
	}
	if s.ProcessTimeout < 0 {
		ve.Add("server.process_timeout must be >= 0")
	}
	if s.ShutdownTimeout <= 0 {
		ve.Add("server.shutdown_timeout must be > 0")
	}
	if s.WorkerPoolSize <= 0 {
		ve.Add("server.worker_pool_size must be > 0")
	}
	if s.QueueSize <= 0 {
		ve.Add("server.queue_size must be > 0")
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q must be one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
	if strings.EqualFold(cfg.Logger.Output, "stdout") {
		ve.Add("logger.output must not be stdout: stdout carries the MCP stream")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stderr", "noop", "":
	case "stdout":
		ve.Add("tracer.exporter must not be stdout: stdout carries the MCP stream")
	default:
		ve.Add("tracer.exporter %q is not supported (want stderr or noop)", cfg.Tracer.Exporter)
	}
}

package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.OpenAI.APIKey = "sk-test"
	return cfg
}

func TestValidateDefaultsWithKeyPass(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Defaults with an API key should pass validation: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing key", func(c *Config) { c.OpenAI.APIKey = "" }, "openai.api_key is required"},
		{"empty model", func(c *Config) { c.OpenAI.Model = "" }, "openai.model must not be empty"},
		{"relative base url", func(c *Config) { c.OpenAI.BaseURL = "/v1" }, "openai.base_url"},
		{"negative retries", func(c *Config) { c.OpenAI.MaxRetries = -1 }, "openai.max_retries must be >= 0"},
		{"zero api timeout", func(c *Config) { c.OpenAI.APITimeout = 0 }, "openai.api_timeout must be > 0"},
		{"bad context size", func(c *Config) { c.OpenAI.SearchContextSize = "huge" }, "openai.search_context_size"},
		{"bad effort", func(c *Config) { c.OpenAI.ReasoningEffort = "max" }, "openai.reasoning_effort"},
		{"negative rpm", func(c *Config) { c.OpenAI.RequestsPerMinute = -1 }, "openai.requests_per_minute"},
		{"breaker without failures", func(c *Config) {
			c.OpenAI.CircuitBreaker.Enabled = true
			c.OpenAI.CircuitBreaker.MaxFailures = 0
		}, "openai.circuit_breaker.max_failures"},
		{"empty server name", func(c *Config) { c.Server.Name = "" }, "server.name must not be empty"},
		{"negative process timeout", func(c *Config) { c.Server.ProcessTimeout = -time.Second }, "server.process_timeout"},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
		{"zero workers", func(c *Config) { c.Server.WorkerPoolSize = 0 }, "server.worker_pool_size"},
		{"zero queue", func(c *Config) { c.Server.QueueSize = 0 }, "server.queue_size"},
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }, "logger.level"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"log to stdout", func(c *Config) { c.Logger.Output = "stdout" }, "logger.output must not be stdout"},
		{"trace to stdout", func(c *Config) {
			c.Tracer.Enabled = true
			c.Tracer.Exporter = "stdout"
		}, "tracer.exporter must not be stdout"},
		{"unknown exporter", func(c *Config) {
			c.Tracer.Enabled = true
			c.Tracer.Exporter = "jaeger"
		}, "tracer.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.OpenAI.APIKey = ""
	cfg.Server.WorkerPoolSize = 0

	err := Validate(cfg)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateDisabledTracerIgnoresExporter(t *testing.T) {
	cfg := validConfig()
	cfg.Tracer.Exporter = "stdout"
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled tracer should not be validated: %v", err)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

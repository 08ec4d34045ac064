package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"o3-search-mcp/internal/adapter/llm"
	"o3-search-mcp/internal/adapter/mcpserver"
	"o3-search-mcp/internal/infra/config"
	"o3-search-mcp/internal/infra/logger"
	"o3-search-mcp/internal/infra/tracer"
	"o3-search-mcp/internal/usecase/lifecycle"
	"o3-search-mcp/internal/usecase/search"
)

const tracerFlushTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = os.Getenv("O3SEARCH_CONFIG")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return exitError(lifecycle.ExitFailure, "load config: %v", err)
	}
	if cfg.Server.Version == config.Defaults().Server.Version {
		cfg.Server.Version = version
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return exitError(lifecycle.ExitFailure, "init logger: %v", err)
	}
	defer closeLog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer, cfg.Server.Name, cfg.Server.Version)
	if err != nil {
		log.Error("init tracer failed", "error", err)
		return exitError(lifecycle.ExitFailure, "init tracer: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	provider := llm.NewProvider(cfg.OpenAI, log)
	handler := search.NewHandler(provider, search.Options{
		Model:             cfg.OpenAI.Model,
		SearchContextSize: cfg.OpenAI.SearchContextSize,
		ReasoningEffort:   cfg.OpenAI.ReasoningEffort,
	}, log)

	srv, err := mcpserver.New(handler, cfg.Server, log)
	if err != nil {
		log.Error("build mcp server failed", "error", err)
		return exitError(lifecycle.ExitFailure, "build mcp server: %v", err)
	}
	transport := mcpserver.NewStdioTransport(srv, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Server, log)

	log.Info("starting o3-search-mcp",
		"version", cfg.Server.Version,
		"model", cfg.OpenAI.Model,
		"search_context_size", cfg.OpenAI.SearchContextSize,
		"reasoning_effort", cfg.OpenAI.ReasoningEffort,
		"max_retries", cfg.OpenAI.MaxRetries,
		"api_timeout", cfg.OpenAI.APITimeout,
		"process_timeout", cfg.Server.ProcessTimeout,
	)

	mgr := lifecycle.NewManager(transport, lifecycle.Config{
		MaxRuntime:   cfg.Server.ProcessTimeout,
		CloseTimeout: cfg.Server.ShutdownTimeout,
	}, log)

	if code := mgr.Run(ctx); code != lifecycle.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintf(os.Stderr, "o3-search-mcp: %s\n", exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "o3-search-mcp: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "o3-search-mcp",
		Short: "MCP server exposing OpenAI o3 web search as a tool",
		Long: "o3-search-mcp serves the o3-search tool over stdio. Each call forwards the\n" +
			"question to the OpenAI Responses API with web search enabled.",
		// stdout carries the protocol stream; cobra must not write to it.
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runServe,
	}

	root.PersistentFlags().String("config", "", "Path to YAML config file (default: $O3SEARCH_CONFIG)")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("o3-search-mcp version %s\n", version))

	root.AddCommand(newVersionCmd())
	root.AddCommand(newEncryptKeyCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "o3-search-mcp version %s\n", version)
		},
	}
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"o3-search-mcp/internal/infra/config"
)

func newEncryptKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-key",
		Short: "Encrypt an API key for use in the config file",
		Long: "Reads a plaintext API key from stdin and prints an enc: value that can be\n" +
			"stored as openai.api_key. The passphrase is taken from O3SEARCH_CONFIG_KEY.",
		Args: cobra.NoArgs,
		RunE: runEncryptKey,
	}
}

func runEncryptKey(cmd *cobra.Command, _ []string) error {
	passphrase := os.Getenv("O3SEARCH_CONFIG_KEY")
	if passphrase == "" {
		return exitError(1, "O3SEARCH_CONFIG_KEY is not set")
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return exitError(1, "read key from stdin: %v", err)
	}
	plaintext := strings.TrimSpace(line)
	if plaintext == "" {
		return exitError(1, "no key provided on stdin")
	}

	encrypted, err := config.EncryptValue(plaintext, passphrase)
	if err != nil {
		return exitError(1, "encrypt: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), config.EncryptedPrefix+encrypted)
	return nil
}

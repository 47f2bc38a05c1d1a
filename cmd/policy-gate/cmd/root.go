// Package cmd provides the CLI commands for policy-gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelpolicy/policygate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "policy-gate",
	Short: "policy-gate - runtime policy decision service for AI agent tool calls",
	Long: `policy-gate answers one question for every tool call an agent wants to
make: may this proceed? It evaluates a published policy against the
session's accumulated state and returns allow/block plus a reason chain.

Configuration is loaded from policygate.yaml in the current directory,
$HOME/.policygate/, or /etc/policygate/.

Environment variables override config values with the POLICYGATE_ prefix.
Example: POLICYGATE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the decision endpoint
  hash-key    Generate and provision a new API key
  config      Inspect the effective configuration
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./policygate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

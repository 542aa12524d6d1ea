// Package main provides the CLI entry point for the agent runtime.
//
// Start the server:
//
//	agentcored serve --config agentcore.yaml
//
// Manage capability evolution:
//
//	agentcored capability request <id> <description>
//	agentcored capability list
//	agentcored capability unblock <id>
//
// Query or import long-term memory:
//
//	agentcored memory query "what do we know about X"
//	agentcored memory import notes.json
//
// Run an interactive terminal session against the pipeline:
//
//	agentcored chat
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise command wiring directly.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentcored",
		Short:        "Self-evolving agent runtime core",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildCapabilityCmd(),
		buildMemoryCmd(),
		buildChatCmd(),
	)
	return rootCmd
}

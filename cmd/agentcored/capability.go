package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrt/agentcore/internal/config"
	"github.com/openrt/agentcore/internal/evolution"
	"github.com/openrt/agentcore/internal/llmprovider"
	"github.com/openrt/agentcore/internal/toolregistry"
	"github.com/openrt/agentcore/pkg/models"
)

func buildCapabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capability",
		Short: "Inspect and drive the capability evolution engine",
	}
	cmd.AddCommand(
		buildCapabilityRequestCmd(),
		buildCapabilityListCmd(),
		buildCapabilityUnblockCmd(),
	)
	return cmd
}

// openEvolutionEngine builds a standalone evolution.Engine bound to the
// configured workspace, without starting the scheduler or any channel
// adapters — these subcommands are one-shot CLI operations against the
// same on-disk state the running server uses.
func openEvolutionEngine(configPath string) (*evolution.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	reg := toolregistry.New()
	var provider llmprovider.Provider
	if cfg.LLM.APIKey != "" {
		provider, err = buildProvider(cfg.LLM)
		if err != nil {
			return nil, err
		}
	}
	return evolution.New(cfg.Workspace.EvolvedToolsDir(), cfg.Workspace.EvolutionRecordsDir(), reg, provider, nil)
}

func buildCapabilityRequestCmd() *cobra.Command {
	var (
		configPath string
		kind       string
	)
	cmd := &cobra.Command{
		Use:   "request <capability-id> <description>",
		Short: "Request generation of a new capability",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEvolutionEngine(configPath)
			if err != nil {
				return err
			}
			id, err := engine.RequestCapability(context.Background(), args[0], args[1], models.CapabilityKind(kind))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requested capability %s: record %s\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVar(&kind, "kind", string(models.KindProcess), "Capability kind: Process, ExternalApi, RhaiScript, DynamicLibrary")
	return cmd
}

func buildCapabilityListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every persisted evolution record",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEvolutionEngine(configPath)
			if err != nil {
				return err
			}
			records, err := engine.ListRecords()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "no evolution records yet")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(out, "%-40s  %-12s  %-16s  attempt=%d  %s\n", r.ID, r.CapabilityID, r.Status, r.Attempt, r.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func buildCapabilityUnblockCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "unblock <capability-id>",
		Short: "Clear a capability's auto-block so future requests can retry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEvolutionEngine(configPath)
			if err != nil {
				return err
			}
			found, err := engine.UnblockCapability(args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "capability %s was not blocked\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "capability %s unblocked\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

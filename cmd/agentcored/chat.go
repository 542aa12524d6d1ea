package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrt/agentcore/internal/channels"
	"github.com/openrt/agentcore/internal/config"
	"github.com/openrt/agentcore/pkg/models"
)

func buildChatCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive terminal session against the agent runtime",
		Long: `Run the agent runtime's pipeline against a single local conversation,
reading one message per line from stdin and printing replies to stdout.

This drives the same MessagePipeline a channel adapter would, registered
under the "cli" channel name, so the session is recorded and resumed exactly
like any other conversation keyed by channel:chat_id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func runChat(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	rt, err := buildRuntime(cfg, log)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.memory.Close()
	defer rt.audit.Close()

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := channels.NewRegistry()
	stdin := channels.NewStdin(os.Stdin, os.Stdout, "local-session", "> ")
	registry.Register(stdin)
	if err := registry.StartAll(runCtx); err != nil {
		return fmt.Errorf("start channel adapters: %w", err)
	}
	defer registry.StopAll(context.Background())

	fmt.Fprintln(os.Stderr, "listening on stdin, Ctrl-C to exit")

	inbound := registry.AggregateMessages(runCtx)
	for {
		select {
		case <-runCtx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			reply, err := rt.pipeline.Process(runCtx, msg, rt.skills)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			if reply == "" {
				continue
			}
			out := models.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: reply}
			if derr := registry.Deliver(runCtx, out); derr != nil {
				fmt.Fprintln(os.Stderr, "delivery error:", derr)
			}
		}
	}
}

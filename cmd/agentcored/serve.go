package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrt/agentcore/internal/audit"
	"github.com/openrt/agentcore/internal/config"
	"github.com/openrt/agentcore/internal/evolution"
	"github.com/openrt/agentcore/internal/llmprovider"
	"github.com/openrt/agentcore/internal/memstore"
	"github.com/openrt/agentcore/internal/metrics"
	"github.com/openrt/agentcore/internal/pipeline"
	"github.com/openrt/agentcore/internal/scheduler"
	"github.com/openrt/agentcore/internal/session"
	"github.com/openrt/agentcore/internal/skillrt"
	"github.com/openrt/agentcore/internal/taskmanager"
	"github.com/openrt/agentcore/internal/tools"
	"github.com/openrt/agentcore/internal/toolregistry"
)

const defaultConfigPath = "agentcore.yaml"

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent runtime's scheduler and skill hot-reload watcher",
		Long: `Start the agent runtime.

The server will:
1. Load configuration from the specified file (or agentcore.yaml)
2. Open the memory store and tool registry
3. Construct the configured LLM provider (Anthropic or OpenAI)
4. Start the capability evolution engine and skill hot-reload watcher
5. Run the periodic scheduler tick (task cleanup, memory maintenance,
   pending evolutions, skill reload, missing-dependency requests)

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with the default config
  agentcored serve

  # Start with a custom config and debug logging
  agentcored serve --config /etc/agentcore/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if debug || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	log := slog.New(handler)
	slog.SetDefault(log)

	log.Info("starting agent runtime", "version", version, "commit", commit, "config", configPath)

	runtime, err := buildRuntime(cfg, log)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer runtime.memory.Close()
	defer runtime.audit.Close()

	runtime.audit.Log(ctx, &audit.Event{Type: audit.EventAgentStartup, Level: audit.LevelInfo, Action: "runtime_started"})

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := metrics.ServeExposition(runCtx, cfg.Metrics.Addr, log); err != nil {
		log.Warn("metrics exposition endpoint unavailable", "error", err)
	}

	runtime.scheduler.Start(runCtx)
	if err := runtime.skills.Watch(runCtx); err != nil {
		log.Warn("skill hot-reload watcher unavailable", "error", err)
	}

	log.Info("agent runtime started", "workspace", cfg.Workspace.Dir)
	<-runCtx.Done()
	log.Info("shutdown signal received, stopping")

	runtime.scheduler.Stop()
	runtime.skills.Stop()
	runtime.audit.Log(ctx, &audit.Event{Type: audit.EventAgentShutdown, Level: audit.LevelInfo, Action: "runtime_stopped"})
	log.Info("agent runtime stopped")
	return nil
}

// runtime bundles every long-lived collaborator the serve command starts,
// so the chat subcommand can build the identical graph without actually
// starting the scheduler or the skill watcher.
type runtime struct {
	cfg       config.Config
	memory    *memstore.Store
	tools     *toolregistry.Registry
	tasks     *taskmanager.Manager
	sessions  *session.Store
	evolution *evolution.Engine
	skills    *skillrt.Manager
	scheduler *scheduler.Scheduler
	pipeline  *pipeline.Pipeline
	audit     *audit.Logger
}

func buildRuntime(cfg config.Config, log *slog.Logger) (*runtime, error) {
	if err := os.MkdirAll(cfg.Workspace.MemoryDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Workspace.SessionsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Workspace.SkillsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create skills dir: %w", err)
	}

	mem, err := memstore.Open(cfg.Workspace.MemoryDBPath(), log)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	reg := toolregistry.New()
	if err := tools.RegisterBuiltins(reg); err != nil {
		mem.Close()
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		mem.Close()
		return nil, err
	}
	if provider != nil && cfg.LLM.MaxRetries > 0 {
		provider = llmprovider.WithRetry(provider, cfg.LLM.MaxRetries, cfg.LLM.RetryDelay)
	}

	tasks := taskmanager.New()
	sessions := session.NewStore(cfg.Workspace.SessionsDir(), log)

	evo, err := evolution.New(cfg.Workspace.EvolvedToolsDir(), cfg.Workspace.EvolutionRecordsDir(), reg, provider, log)
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("build evolution engine: %w", err)
	}
	metricsCollector := metrics.New()
	evo.SetMetrics(metricsCollector)

	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("build audit logger: %w", err)
	}
	evo.SetAudit(auditLogger)

	skills := skillrt.NewManager(cfg.Workspace.SkillsDir(), log)

	sched := scheduler.New(cfg.Scheduler.Interval, tasks, mem, evo, skills, reg,
		scheduler.WithLogger(log), scheduler.WithCronExpr(cfg.Scheduler.CronExpr))

	pipe := pipeline.New(pipeline.Dependencies{
		Memory:          mem,
		Tools:           reg,
		Tasks:           tasks,
		Sessions:        sessions,
		LLM:             provider,
		Confirm:         nil,
		Evolution:       evo,
		Log:             log,
		Metrics:         metricsCollector,
		Audit:           auditLogger,
		CapabilityBrief: sched.CapabilityBrief,
	}, pipeline.DefaultConfig(cfg.Workspace.Dir))

	return &runtime{
		cfg:       cfg,
		memory:    mem,
		tools:     reg,
		tasks:     tasks,
		sessions:  sessions,
		evolution: evo,
		skills:    skills,
		scheduler: sched,
		pipeline:  pipe,
		audit:     auditLogger,
	}, nil
}

func buildProvider(cfg config.LLMConfig) (llmprovider.Provider, error) {
	if cfg.APIKey == "" {
		// No LLM configured: tool execution and skill fast paths still work,
		// RunPendingEvolutions becomes a no-op.
		return nil, nil
	}
	switch cfg.Provider {
	case "", "anthropic":
		return llmprovider.NewAnthropic(llmprovider.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		})
	case "openai":
		return llmprovider.NewOpenAI(llmprovider.OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

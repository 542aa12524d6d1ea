// Package config loads the runtime's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openrt/agentcore/internal/audit"
)

// Config is the root configuration structure for the agent runtime.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	LLM        LLMConfig        `yaml:"llm"`
	Memory     MemoryConfig     `yaml:"memory"`
	Tools      ToolsConfig      `yaml:"tools"`
	Tasks      TasksConfig      `yaml:"tasks"`
	Evolution  EvolutionConfig  `yaml:"evolution"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Audit      audit.Config     `yaml:"audit"`
}

// WorkspaceConfig locates the runtime's on-disk state.
type WorkspaceConfig struct {
	// Dir is the root of all runtime state: sessions, memory.db, skills,
	// toggles.json, tool_artifacts, tool_evolution_records, tool_versions.
	Dir string `yaml:"dir"`

	// BuiltinSkillsDir is a read-only mirror of built-in skills, layered
	// beneath Dir/skills.
	BuiltinSkillsDir string `yaml:"builtin_skills_dir"`
}

func (w WorkspaceConfig) SessionsDir() string         { return w.Dir + "/sessions" }
func (w WorkspaceConfig) MemoryDir() string            { return w.Dir + "/memory" }
func (w WorkspaceConfig) MemoryDBPath() string         { return w.MemoryDir() + "/memory.db" }
func (w WorkspaceConfig) SkillsDir() string            { return w.Dir + "/skills" }
func (w WorkspaceConfig) TogglesFile() string          { return w.Dir + "/toggles.json" }
func (w WorkspaceConfig) EvolvedToolsDir() string      { return w.Dir + "/tool_artifacts" }
func (w WorkspaceConfig) EvolutionRecordsDir() string  { return w.Dir + "/tool_evolution_records" }
func (w WorkspaceConfig) ToolVersionsDir() string      { return w.Dir + "/tool_versions" }
func (w WorkspaceConfig) SessionFile(key string) string {
	return w.SessionsDir() + "/" + sanitizeKey(key) + ".jsonl"
}

func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// LLMConfig selects and configures the LLM provider.
type LLMConfig struct {
	Provider     string        `yaml:"provider"` // "anthropic" | "openai"
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// MemoryConfig tunes the MemoryStore.
type MemoryConfig struct {
	RecycleDays int `yaml:"recycle_days"`
}

// ToolsConfig tunes the ToolRegistry and the per-turn tool catalogue.
type ToolsConfig struct {
	CoreTools []string `yaml:"core_tools"`
}

// DefaultCoreTools is the fixed core set emitted with full schemas every
// turn (everything else is tiered down to a lightweight schema).
var DefaultCoreTools = []string{
	"read_file", "write_file", "edit_file", "list_dir", "exec",
	"web_search", "web_fetch", "message", "memory_query", "memory_upsert",
	"spawn", "list_tasks", "cron",
}

// TasksConfig tunes the TaskManager.
type TasksConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// EvolutionConfig tunes the CapabilityEvolutionEngine.
type EvolutionConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	MaxAutoFailure int           `yaml:"max_auto_failures"`
	DryRunTimeout  time.Duration `yaml:"dry_run_timeout"`
	RequestCooldown time.Duration `yaml:"request_cooldown"`
}

// SchedulerConfig tunes SchedulerTick.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`

	// CronExpr, if set, coalesces ticks onto a cron schedule instead of a
	// fixed interval (e.g. "0 */15 * * * *"). Interval is still used as the
	// fallback if CronExpr fails to parse.
	CronExpr string `yaml:"cron"`
}

// ChannelsConfig declares which ingress channels are active. Wire formats
// for individual channels are owned by external adapters; the core only
// needs their names for routing.
type ChannelsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// LoggingConfig selects slog output format/level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" | "json"
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	// Addr is the listen address for the /metrics HTTP endpoint, e.g.
	// ":9090". An empty Addr disables the endpoint entirely.
	Addr string `yaml:"addr"`
}

// Default returns a Config with every field set to a workable default.
func Default() Config {
	return Config{
		Workspace: WorkspaceConfig{Dir: "./workspace", BuiltinSkillsDir: "./skills-builtin"},
		LLM: LLMConfig{
			Provider:     "anthropic",
			DefaultModel: "claude-sonnet-4-20250514",
			MaxRetries:   3,
			RetryDelay:   time.Second,
		},
		Memory: MemoryConfig{RecycleDays: 30},
		Tools:  ToolsConfig{CoreTools: DefaultCoreTools},
		Tasks:  TasksConfig{TTL: 5 * time.Minute},
		Evolution: EvolutionConfig{
			MaxRetries:      3,
			MaxAutoFailure:  3,
			DryRunTimeout:   10 * time.Second,
			RequestCooldown: 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{Interval: 60 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Audit:     audit.DefaultConfig(),
	}
}

// Load reads and parses a YAML config file, applying Default() for any
// fields the file does not set.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Scheduler.Interval < 10*time.Second {
		cfg.Scheduler.Interval = 10 * time.Second
	}
	if cfg.Scheduler.Interval > 300*time.Second {
		cfg.Scheduler.Interval = 300 * time.Second
	}
	return cfg, nil
}

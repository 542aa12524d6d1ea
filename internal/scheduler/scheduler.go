// Package scheduler implements SchedulerTick: the single periodic
// maintenance sweep that cleans up finished work, runs pending capability
// evolutions, hot-reloads skills, and requests capabilities for any skill
// whose dependency is still missing.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openrt/agentcore/internal/evolution"
	"github.com/openrt/agentcore/internal/memstore"
	"github.com/openrt/agentcore/internal/skillrt"
	"github.com/openrt/agentcore/internal/taskmanager"
	"github.com/openrt/agentcore/internal/toolregistry"
	"github.com/openrt/agentcore/pkg/models"
)

// cronParser accepts the same optional-seconds five/six-field syntax the
// teacher's internal/cron package configures, so a cron expression lifted
// from that config works here unchanged.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

const (
	minInterval = 10 * time.Second
	maxInterval = 300 * time.Second

	taskTTL            = 5 * time.Minute
	memoryRecycleDays  = 30
	dependencyCooldown = 24 * time.Hour
)

// Option configures a Scheduler, mirroring the teacher's cron.Scheduler
// functional-options pattern.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCronExpr coalesces ticks onto a cron schedule instead of the fixed
// interval — e.g. "0 */15 * * * *" to tick on each quarter hour rather than
// every interval duration from process start. An invalid expression is
// logged and the scheduler falls back to fixed-interval ticking.
func WithCronExpr(expr string) Option {
	return func(s *Scheduler) {
		if expr == "" {
			return
		}
		sched, err := cronParser.Parse(expr)
		if err != nil {
			s.log.Error("scheduler: invalid cron expression, falling back to fixed interval", "expr", expr, "error", err)
			return
		}
		s.cron = sched
	}
}

// Scheduler drives one SchedulerTick on a fixed interval.
type Scheduler struct {
	interval time.Duration
	tasks    *taskmanager.Manager
	memory   *memstore.Store
	evo      *evolution.Engine
	skills   *skillrt.Manager
	tools    *toolregistry.Registry
	log      *slog.Logger
	now      func() time.Time
	cron     cron.Schedule // optional; nil means fixed-interval ticking

	mu              sync.Mutex
	lastRequestedAt map[string]time.Time // capability id -> last request_capability cooldown stamp

	started bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New constructs a Scheduler. interval is clamped to [10s, 300s] per the
// spec's tick-interval bound.
func New(interval time.Duration, tasks *taskmanager.Manager, memory *memstore.Store, evo *evolution.Engine, skills *skillrt.Manager, tools *toolregistry.Registry, opts ...Option) *Scheduler {
	if interval < minInterval {
		interval = minInterval
	}
	if interval > maxInterval {
		interval = maxInterval
	}
	s := &Scheduler{
		interval:        interval,
		tasks:           tasks,
		memory:          memory,
		evo:             evo,
		skills:          skills,
		tools:           tools,
		log:             slog.Default(),
		now:             time.Now,
		lastRequestedAt: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the tick loop; it is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	if s.cron != nil {
		go s.runCronLoop(runCtx)
	} else {
		go s.runIntervalLoop(runCtx)
	}
}

// runIntervalLoop ticks every s.interval, the default mode.
func (s *Scheduler) runIntervalLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// runCronLoop ticks at each time s.cron's schedule names, recomputed after
// every fire so DST and leap-second drift never accumulate.
func (s *Scheduler) runCronLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		next := s.cron.Next(s.now())
		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Tick(ctx)
		}
	}
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Tick runs one SchedulerTick pass: task cleanup, memory maintenance,
// pending evolutions, skill hot-reload, and missing-dependency capability
// requests. It does not cache a capability brief; CapabilityBrief renders
// one from the evolution engine on each call. Each step's failure is logged
// and does not block the remaining steps.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.tasks != nil {
		removed := s.tasks.CleanupOldTasks(taskTTL)
		if removed > 0 {
			s.log.Debug("scheduler: cleaned up old tasks", "removed", removed)
		}
	}

	if s.memory != nil {
		expired, purged, err := s.memory.Maintenance(ctx, memoryRecycleDays)
		if err != nil {
			s.log.Warn("scheduler: memory maintenance failed", "error", err)
		} else if expired+purged > 0 {
			s.log.Debug("scheduler: memory maintenance", "expired", expired, "purged", purged)
		}
	}

	if s.evo != nil {
		if processed, err := s.evo.RunPendingEvolutions(ctx); err != nil {
			s.log.Warn("scheduler: run pending evolutions failed", "error", err)
		} else if processed > 0 {
			s.log.Debug("scheduler: processed pending evolutions", "count", processed)
		}
	}

	if s.skills != nil {
		if n, errs := s.skills.Reload(); len(errs) > 0 {
			s.log.Warn("scheduler: skill reload had errors", "loaded", n, "errors", len(errs))
		}
		s.requestMissingDependencies(ctx)
	}
}

// requestMissingDependencies invokes RequestCapability for every skill
// dependency not currently registered, honoring a per-capability cooldown
// so a persistently-missing dependency does not generate a request storm.
func (s *Scheduler) requestMissingDependencies(ctx context.Context) {
	if s.evo == nil || s.tools == nil {
		return
	}
	missing := s.skills.MissingDependencies(func(capabilityID string) bool {
		_, ok := s.tools.Get(capabilityID)
		return ok
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dep := range missing {
		last, seen := s.lastRequestedAt[dep.CapabilityID]
		if seen && s.now().Sub(last) < dependencyCooldown {
			continue
		}
		s.lastRequestedAt[dep.CapabilityID] = s.now()
		desc := "auto-requested: dependency of skill " + dep.SkillName
		if _, err := s.evo.RequestCapability(ctx, dep.CapabilityID, desc, models.KindProcess); err != nil {
			s.log.Debug("scheduler: capability request skipped", "capability_id", dep.CapabilityID, "error", err)
		}
	}
}

// CapabilityBrief proxies the configured evolution engine's brief, so the
// pipeline's Dependencies.CapabilityBrief can be wired straight to the
// scheduler's own collaborator without duplicating the nil check.
func (s *Scheduler) CapabilityBrief() string {
	if s.evo == nil {
		return ""
	}
	return s.evo.CapabilityBrief()
}

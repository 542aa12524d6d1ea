package skillrt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager discovers skills under a root directory and hot-reloads them on
// filesystem change, grounded on the teacher's internal/skills.Manager
// watch loop (fsnotify watcher, debounced reload) but scoped to this
// runtime's narrower single-directory layout.
type Manager struct {
	root     string
	log      *slog.Logger
	debounce time.Duration
	updated  chan struct{}

	mu     sync.RWMutex
	skills map[string]*Skill

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a Manager rooted at skillsDir and performs an
// initial synchronous discovery pass.
func NewManager(skillsDir string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		root:     skillsDir,
		log:      log,
		debounce: 250 * time.Millisecond,
		updated:  make(chan struct{}, 1),
		skills:   make(map[string]*Skill),
	}
	m.Reload()
	return m
}

// Updated returns a channel that receives a value (non-blocking, at most one
// buffered) each time Reload picks up a change — the skills_updated event
// the pipeline's system-prompt brief can react to.
func (m *Manager) Updated() <-chan struct{} {
	return m.updated
}

// Reload re-scans root synchronously, replacing the in-memory skill set.
// Returns the number of skills discovered and any per-skill parse errors.
func (m *Manager) Reload() (int, []error) {
	skills, errs := discoverSkills(m.root)
	m.mu.Lock()
	m.skills = skills
	m.mu.Unlock()
	for _, err := range errs {
		m.log.Warn("skillrt: failed to load skill", "error", err)
	}
	select {
	case m.updated <- struct{}{}:
	default:
	}
	return len(skills), errs
}

// List returns a snapshot of currently loaded skills.
func (m *Manager) List() []*Skill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Skill, 0, len(m.skills))
	for _, s := range m.skills {
		out = append(out, s)
	}
	return out
}

// Get returns the named skill, if loaded.
func (m *Manager) Get(name string) (*Skill, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.skills[name]
	return s, ok
}

// MissingDependencies reports, for every loaded skill, any declared
// dependency capability id for which hasCapability returns false.
func (m *Manager) MissingDependencies(hasCapability func(capabilityID string) bool) []MissingDependency {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var missing []MissingDependency
	for _, s := range m.skills {
		for _, dep := range s.Meta.Dependencies {
			if !hasCapability(dep) {
				missing = append(missing, MissingDependency{SkillName: s.Meta.Name, CapabilityID: dep})
			}
		}
	}
	return missing
}

// Watch starts a debounced fsnotify watch of root; every batch of events
// within the debounce window triggers exactly one Reload. Watch is
// idempotent; a second call is a no-op until Stop runs.
func (m *Manager) Watch(ctx context.Context) error {
	if m.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.root); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.watchLoop(runCtx)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case _, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(m.debounce)
			} else {
				timer.Reset(m.debounce)
			}
			timerC = timer.C
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("skillrt: watcher error", "error", err)
		case <-timerC:
			m.Reload()
			timerC = nil
		}
	}
}

// Stop halts the watch loop and releases the fsnotify watcher.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
}

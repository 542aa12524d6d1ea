// Package taskmanager tracks in-flight and recently-completed pipeline work.
package taskmanager

import (
	"sync"
	"time"

	"github.com/openrt/agentcore/pkg/models"
)

// Manager is a locked-map registry of Tasks. Status transitions are
// monotonic: once a task reaches a terminal status, further transitions are
// ignored rather than erroring, since a late duplicate completion callback
// is a race the caller cannot always avoid.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

func New() *Manager {
	return &Manager{tasks: make(map[string]*models.Task)}
}

// CreateTask registers a new task in the queued state.
func (m *Manager) CreateTask(id, label, originChannel, originChatID string) *models.Task {
	now := time.Now()
	t := &models.Task{
		ID:            id,
		Label:         label,
		Status:        models.TaskQueued,
		OriginChannel: originChannel,
		OriginChatID:  originChatID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.mu.Lock()
	m.tasks[id] = t
	m.mu.Unlock()
	return cloneTask(t)
}

// SetRunning transitions an existing task to running. No-op if the task
// does not exist or is already terminal.
func (m *Manager) SetRunning(id string) {
	m.transition(id, func(t *models.Task) { t.Status = models.TaskRunning })
}

// SetProgress records a free-text progress note without changing status.
func (m *Manager) SetProgress(id, note string) {
	m.transition(id, func(t *models.Task) { t.Progress = note })
}

// SetCompleted marks a task completed with its result.
func (m *Manager) SetCompleted(id, result string) {
	m.transition(id, func(t *models.Task) {
		t.Status = models.TaskCompleted
		t.Result = result
	})
}

// SetFailed marks a task failed with an error message.
func (m *Manager) SetFailed(id, errMsg string) {
	m.transition(id, func(t *models.Task) {
		t.Status = models.TaskFailed
		t.Error = errMsg
	})
}

// transition applies mutate to task id unless it is already terminal or
// unknown, matching the "set_running may only be called on an existing
// task" contract — callers are responsible for the create-then-run order.
func (m *Manager) transition(id string, mutate func(*models.Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	mutate(t)
	t.UpdatedAt = time.Now()
}

// RemoveTask deletes a task regardless of status.
func (m *Manager) RemoveTask(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

// Get returns a defensive copy of the task, if present.
func (m *Manager) Get(id string) (*models.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// ListTasks returns a snapshot of tasks matching filter (nil filter = all).
func (m *Manager) ListTasks(filter *models.TaskFilter) []*models.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if filter != nil {
			if filter.Status != nil && t.Status != *filter.Status {
				continue
			}
			if filter.OriginChannel != nil && t.OriginChannel != *filter.OriginChannel {
				continue
			}
		}
		out = append(out, cloneTask(t))
	}
	return out
}

// Summary returns the queued/running/completed/failed counts.
func (m *Manager) Summary() models.TaskSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s models.TaskSummary
	for _, t := range m.tasks {
		switch t.Status {
		case models.TaskQueued:
			s.Queued++
		case models.TaskRunning:
			s.Running++
		case models.TaskCompleted:
			s.Completed++
		case models.TaskFailed:
			s.Failed++
		}
	}
	return s
}

// CleanupOldTasks removes terminal tasks last updated more than ttl ago,
// returning the count removed.
func (m *Manager) CleanupOldTasks(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, t := range m.tasks {
		if t.Status.Terminal() && t.UpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

func cloneTask(t *models.Task) *models.Task {
	clone := *t
	return &clone
}

// Package evolution implements the CapabilityEvolutionEngine: on-demand
// generation, compilation, validation, and hot-loading of new tool
// capabilities, with a bounded-retry generation loop and a consecutive-
// failure block policy.
package evolution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openrt/agentcore/pkg/models"
)

// store persists EvolutionRecords as one JSON file per record under
// recordsDir, mirroring the teacher's memstore preference for plain files
// over an embedded KV store for small, human-inspectable state.
type store struct {
	mu         sync.Mutex
	recordsDir string
}

func newStore(recordsDir string) (*store, error) {
	if err := os.MkdirAll(recordsDir, 0o755); err != nil {
		return nil, fmt.Errorf("evolution: create records dir: %w", err)
	}
	return &store{recordsDir: recordsDir}, nil
}

func (s *store) path(id string) string {
	return filepath.Join(s.recordsDir, id+".json")
}

func (s *store) save(r *models.EvolutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.UpdatedAt = stamp()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.UpdatedAt
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("evolution: marshal record %s: %w", r.ID, err)
	}
	tmp := s.path(r.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("evolution: write record %s: %w", r.ID, err)
	}
	return os.Rename(tmp, s.path(r.ID))
}

func (s *store) load(id string) (*models.EvolutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("evolution: read record %s: %w", id, err)
	}
	var r models.EvolutionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("evolution: unmarshal record %s: %w", id, err)
	}
	return &r, nil
}

// all returns every persisted record, newest created_at first.
func (s *store) all() ([]*models.EvolutionRecord, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.recordsDir)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("evolution: list records dir: %w", err)
	}
	var records []*models.EvolutionRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		r, err := s.load(id)
		if err != nil {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *store) forCapability(capabilityID string) ([]*models.EvolutionRecord, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	var out []*models.EvolutionRecord
	for _, r := range all {
		if r.CapabilityID == capabilityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// stamp is the engine's single time source, isolated here so the rest of
// the package never calls time.Now() directly — a future deterministic-
// clock test double only needs to replace this one function.
var stamp = time.Now

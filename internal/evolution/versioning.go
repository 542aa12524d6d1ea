package evolution

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openrt/agentcore/pkg/models"
)

// versionManager keeps a per-capability history of successful (Active)
// artifacts, so a later regression can be rolled back to the last version
// that worked. Snapshots are copies of the compiled artifact under
// artifactsDir/versions/<capability-id>/<version>, never the live path, so
// rollback never depends on a later attempt's writes.
type versionManager struct {
	mu           sync.Mutex
	artifactsDir string
	history      map[string][]models.CapabilityVersion
}

func newVersionManager(artifactsDir string) *versionManager {
	return &versionManager{
		artifactsDir: artifactsDir,
		history:      make(map[string][]models.CapabilityVersion),
	}
}

// snapshot copies artifactPath into the capability's version history and
// records it, returning the new version number.
func (vm *versionManager) snapshot(capabilityID, artifactPath, sourceCode string) (int, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	versions := vm.history[capabilityID]
	next := len(versions) + 1
	dir := filepath.Join(vm.artifactsDir, "versions", sanitizeID(capabilityID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("evolution: create version dir: %w", err)
	}
	dest := filepath.Join(dir, fmt.Sprintf("v%d%s", next, filepath.Ext(artifactPath)))
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return 0, fmt.Errorf("evolution: read artifact for snapshot: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o755); err != nil {
		return 0, fmt.Errorf("evolution: write version snapshot: %w", err)
	}
	vm.history[capabilityID] = append(versions, models.CapabilityVersion{
		Version:      next,
		ArtifactPath: dest,
		SourceCode:   sourceCode,
		CreatedAt:    stamp(),
	})
	return next, nil
}

// previous returns the second-to-last recorded version (the one to restore
// when the latest is being rolled back), or false if fewer than two exist.
func (vm *versionManager) previous(capabilityID string) (models.CapabilityVersion, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	versions := vm.history[capabilityID]
	if len(versions) < 2 {
		return models.CapabilityVersion{}, false
	}
	return versions[len(versions)-2], true
}

func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

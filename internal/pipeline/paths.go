package pipeline

import (
	"encoding/json"

	execsafety "github.com/openrt/agentcore/internal/exec"
)

// extractPathArgs walks a tool call's JSON parameter object and returns
// every top-level string value that looks like a filesystem path, so the
// path-safety gate can resolve and authorize each one.
func extractPathArgs(params json.RawMessage) []string {
	var obj map[string]any
	if err := json.Unmarshal(params, &obj); err != nil {
		return nil
	}
	var paths []string
	for _, v := range obj {
		switch val := v.(type) {
		case string:
			if execsafety.IsLikelyPath(val) {
				paths = append(paths, val)
			}
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok && execsafety.IsLikelyPath(s) {
					paths = append(paths, s)
				}
			}
		}
	}
	return paths
}

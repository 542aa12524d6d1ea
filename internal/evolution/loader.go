package evolution

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RuntimeCapability is the symbol a DynamicLibrary artifact must export: a
// single synchronous call taking and returning a JSON-shaped payload. This
// is the Go-native equivalent of the original cdylib ABI, scoped down to
// what a capability actually needs rather than a full plugin lifecycle.
type RuntimeCapability interface {
	Invoke(input []byte) ([]byte, error)
}

// capabilityPluginSymbol is the exported symbol name a DynamicLibrary
// artifact must define, mirroring the teacher's runtime-plugin loader.
const capabilityPluginSymbol = "Capability"

// errPathTraversal guards loadDynamicLibrary against a path argument escaping the
// artifacts directory via "..", regardless of build tag.
var errPathTraversal = fmt.Errorf("evolution: artifact path contains a path-traversal segment")

func validateArtifactPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("evolution: artifact path is empty")
	}
	cleaned := filepath.Clean(path)
	for _, seg := range strings.FieldsFunc(cleaned, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", errPathTraversal
		}
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("evolution: resolve artifact path: %w", err)
	}
	return abs, nil
}

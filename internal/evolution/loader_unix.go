//go:build !windows

package evolution

import (
	"fmt"
	"plugin"
)

// loadDynamicLibrary opens a Go plugin artifact and resolves its exported
// Capability symbol.
func loadDynamicLibrary(path string) (RuntimeCapability, error) {
	validated, err := validateArtifactPath(path)
	if err != nil {
		return nil, err
	}
	plug, err := plugin.Open(validated)
	if err != nil {
		return nil, fmt.Errorf("evolution: open plugin %s: %w", validated, err)
	}
	symbol, err := plug.Lookup(capabilityPluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("evolution: lookup %s: %w", capabilityPluginSymbol, err)
	}
	switch v := symbol.(type) {
	case RuntimeCapability:
		return v, nil
	case *RuntimeCapability:
		return *v, nil
	default:
		return nil, fmt.Errorf("evolution: plugin symbol %s does not implement RuntimeCapability", capabilityPluginSymbol)
	}
}

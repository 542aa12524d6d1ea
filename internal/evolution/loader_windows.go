//go:build windows

package evolution

import "fmt"

// ErrWindowsPluginsNotSupported indicates that DynamicLibrary capabilities
// cannot be hot-loaded on Windows.
var ErrWindowsPluginsNotSupported = fmt.Errorf(
	"dynamic capability loading (.so plugins) is not supported on Windows. " +
		"To use a DynamicLibrary capability on Windows, either: " +
		"(1) request a Process or ExternalApi capability instead, or " +
		"(2) run the agent runtime in WSL2 or a Linux container",
)

func loadDynamicLibrary(path string) (RuntimeCapability, error) {
	return nil, ErrWindowsPluginsNotSupported
}

package docker

import (
	"os"
)

// MarkerFiles are the paths whose presence means the current process runs
// inside a container.
var MarkerFiles = []string{"/.dockerenv", "/.iscontainer"}

func fileExists(filepath string) bool {
	_, err := os.Stat(filepath)
	return !os.IsNotExist(err)
}

// IsRunningInContainer checks the default MarkerFiles.
func IsRunningInContainer() bool {
	return AnyExists(MarkerFiles...)
}

// AnyExists reports whether at least one of paths exists.
func AnyExists(paths ...string) bool {
	for _, p := range paths {
		if fileExists(p) {
			return true
		}
	}
	return false
}

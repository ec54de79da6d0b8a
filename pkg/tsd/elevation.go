package tsd

import (
	"os"
	"runtime"
)

// processElevated probes whether the current process runs with elevated
// privilege. On Unix-likes this is an effective-UID check. On platforms
// where the probe is inapplicable the default is permissive so development
// environments proceed; that default is a convenience, not a security
// boundary.
func processElevated() bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return os.Geteuid() == 0
}

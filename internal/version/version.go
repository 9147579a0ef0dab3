// Package version contains build version information.
package version

import "fmt"

// Version is the current application version.
// This value is set at build time via ldflags.
var Version = "0.0.0"

// GitCommit is the git commit hash.
// This value is set at build time via ldflags.
var GitCommit = "unknown"

// BuildDate is the build date.
// This value is set at build time via ldflags.
var BuildDate = "unknown"

// String formats the build information on one line.
func String() string {
	return fmt.Sprintf("subscription-garden %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

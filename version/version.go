// Package version holds build-time version information.
// Values are injected at build time via -ldflags.
package version

import "runtime"

var (
	// GitRelease is the release tag, e.g. "v0.3.1".
	GitRelease = "dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// GitCommitDate is the date of the commit.
	GitCommitDate = "unknown"

	// GoInfo is the Go toolchain version used for the build.
	GoInfo = runtime.Version()
)

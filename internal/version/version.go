// Package version holds build metadata set through -ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/sitepress/internal/version.Version=v0.3.0"
package version

import "fmt"

// Version is the released version, or "unknown" for local builds.
var Version = "unknown"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns the version line printed by --version.
func String() string {
	return fmt.Sprintf("sitepress %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

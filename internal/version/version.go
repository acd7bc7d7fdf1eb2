// Package version provides build information for tablesource.
package version

import (
	"runtime/debug"
)

// Version is the version of tablesource. This can be overridden at build time using ldflags.
var Version = "development"

// Commit is the git commit hash. This can be overridden at build time using ldflags.
var Commit = "unknown"

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// String returns the full version string including the commit hash if available.
// Without an ldflags commit, the VCS revision stamped by the Go toolchain is used.
func String() string {
	commit := Commit
	if commit == "unknown" {
		commit = vcsRevision()
	}
	if commit != "" && commit != "unknown" {
		return Version + "+" + commit
	}
	return Version
}

func vcsRevision() string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 7 {
				return s.Value[:7]
			}
			return s.Value
		}
	}
	return ""
}

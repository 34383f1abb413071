// Package version provides build-time version information for convertarr.
//
// Version, Commit, and Date are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/convertarr/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/convertarr/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/convertarr/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// When ldflags are absent, Commit and Date fall back to the VCS stamp that
// the Go toolchain embeds in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "convertarr"

const shortCommitLen = 8

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns all version information.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildSettings(&info, bi.Settings)
	}
	return info
}

// applyBuildSettings fills unset fields from the embedded VCS stamp.
func applyBuildSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" && s.Value != "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
}

// ShortCommit returns the abbreviated commit hash, or "" when unknown.
func (i Info) ShortCommit() string {
	if i.Commit == "unknown" || len(i.Commit) < shortCommitLen {
		return ""
	}
	c := i.Commit[:shortCommitLen]
	if i.Dirty {
		c += "-dirty"
	}
	return c
}

// String returns a human-readable version string.
func (i Info) String() string {
	if c := i.ShortCommit(); c != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, i.Version, c, i.Date, i.GoVersion, i.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, i.Version, i.GoVersion, i.Platform)
}

// String returns the human-readable version of the running binary.
func String() string {
	return GetInfo().String()
}

// Short returns a short version string suitable for CLI --version output.
func Short() string {
	if c := GetInfo().ShortCommit(); c != "" {
		return fmt.Sprintf("%s %s (%s)", ApplicationName, Version, c)
	}
	return fmt.Sprintf("%s %s", ApplicationName, Version)
}

// IsRelease returns true for tagged builds: not "dev" and not a
// "-SNAPSHOT" prerelease.
func IsRelease() bool {
	return Version != "dev" && !strings.Contains(Version, "-SNAPSHOT")
}

// Package version provides build and version information for evosynth. VCS metadata is read from the build info
// embedded by the Go toolchain unless it was set explicitly through ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/Masterminds/semver"
)

// These variables can be set via ldflags at build time.
var (
	// Version is the semantic version of the build.
	Version = "0.3.0"
	// GitCommit is the git commit hash.
	GitCommit = ""
	// GitTreeDirty indicates if the git tree was dirty at build time.
	GitTreeDirty = ""
)

// Info contains the full version information for the build.
type Info struct {
	Version      string
	GitCommit    string
	GitTreeDirty bool
	GoVersion    string
}

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			if GitCommit == "" {
				GitCommit = kv.Value
			}
		case "vcs.modified":
			if GitTreeDirty == "" {
				GitTreeDirty = kv.Value
			}
		}
	}
}

// GetInfo returns the complete version information.
func GetInfo() Info {
	return Info{
		Version:      Version,
		GitCommit:    GitCommit,
		GitTreeDirty: GitTreeDirty == "true",
		GoVersion:    runtime.Version(),
	}
}

// SemVer parses the tool version. It panics if Version was set to something that is not a semantic version, which
// can only happen through a broken build.
func SemVer() *semver.Version {
	v, err := semver.NewVersion(Version)
	if err != nil {
		panic(fmt.Sprintf("invalid build version %q: %v", Version, err))
	}
	return v
}

// IsCompatible reports whether data written by the tool at version other can be read by this build. Versions are
// compatible when they share a major version, or for 0.x builds, a minor version.
func IsCompatible(other string) bool {
	otherVersion, err := semver.NewVersion(other)
	if err != nil {
		return false
	}
	current := SemVer()
	constraintText := fmt.Sprintf("~%d.%d", current.Major(), current.Minor())
	if current.Major() > 0 {
		constraintText = fmt.Sprintf("^%d", current.Major())
	}
	constraint, err := semver.NewConstraint(constraintText)
	if err != nil {
		return false
	}
	return constraint.Check(otherVersion)
}

// String returns a formatted multi-line version string.
func (i Info) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("evosynth version %s\n", i.Version))
	if i.GitCommit != "" {
		commit := i.GitCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if i.GitTreeDirty {
			commit += "-dirty"
		}
		sb.WriteString(fmt.Sprintf("  Commit:     %s\n", commit))
	}
	sb.WriteString(fmt.Sprintf("  Go version: %s\n", i.GoVersion))
	return sb.String()
}

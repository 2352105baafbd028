// Package version reports the build version of the printhost binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time with
//
//	go build -ldflags="-X github.com/muurk/printhost/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/printhost/internal/version.Commit=abc123"
//
// Unset values are taken from the VCS stamp in the build info, then fall
// back to a timestamped dev version.
var (
	Version = ""
	Commit  = ""
)

// shortCommit is the length commit hashes are cut to
const shortCommit = 7

// Info describes the running build
type Info struct {
	Version   string `json:"server"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go"`
}

func init() {
	if Version == "" || Commit == "" {
		vcs := readVCS()
		if Commit == "" {
			Commit = vcs.commit()
		}
		if Version == "" {
			Version = vcs.version()
		}
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// vcsStamp holds the vcs.* build settings
type vcsStamp struct {
	revision string
	modified bool
	time     time.Time
}

func readVCS() vcsStamp {
	var stamp vcsStamp
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return stamp
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			stamp.revision = setting.Value
		case "vcs.modified":
			stamp.modified = setting.Value == "true"
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				stamp.time = t
			}
		}
	}
	return stamp
}

func (v vcsStamp) commit() string {
	if v.revision == "" {
		return ""
	}
	commit := v.revision
	if len(commit) > shortCommit {
		commit = commit[:shortCommit]
	}
	if v.modified {
		commit += "-dirty"
	}
	return commit
}

// version derives a dev version from the commit date; build info carries no tags
func (v vcsStamp) version() string {
	if v.time.IsZero() {
		return ""
	}
	return "dev-" + v.time.Format("20060102")
}

// Get returns the running build
func Get() Info {
	return Info{Version: Version, Commit: Commit, GoVersion: runtime.Version()}
}

// Full returns the version with its commit, as printed by the version commands
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent returns the HTTP User-Agent sent by the printhost client
func UserAgent() string {
	return "printhost/" + Version
}

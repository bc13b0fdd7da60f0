// Package version reports build metadata. Release builds set the variables
// with -ldflags "-X"; plain `go build` falls back to the embedded VCS stamp.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// UserAgent is sent on every outbound HTTP request.
func UserAgent() string {
	return "rehearse/" + Version
}

func String() string {
	commit, date := stamp()
	return fmt.Sprintf("rehearse %s (commit=%s, date=%s, go=%s)", Version, commit, date, runtime.Version())
}

// stamp prefers ldflags values and fills the gaps from vcs.* build settings.
func stamp() (commit string, date string) {
	commit, date = Commit, Date
	if commit != "none" && date != "unknown" {
		return commit, date
	}
	info, ok := readBuildInfo()
	if !ok {
		return commit, date
	}

	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if commit == "none" && setting.Value != "" {
				commit = setting.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		case "vcs.time":
			if date == "unknown" && setting.Value != "" {
				date = setting.Value
			}
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if modified && commit != "none" && commit != Commit {
		commit += "-dirty"
	}
	return commit, date
}

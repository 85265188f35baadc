// Package buildinfo reports the wikicord version.
package buildinfo

import (
	"runtime/debug"
	"strings"
)

// Version metadata is injected at build time via ldflags. When unset, the
// VCS stamp recorded by the Go toolchain is used instead.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var readBuildInfo = debug.ReadBuildInfo

// Summary returns a human-readable version summary string.
func Summary() string {
	version, commit, date := resolve()
	return format(version, commit, date)
}

func resolve() (version, commit, date string) {
	version, commit, date = Version, Commit, Date
	if commit != "" {
		return version, commit, date
	}
	info, ok := readBuildInfo()
	if !ok {
		return version, commit, date
	}
	if (version == "" || version == "dev") && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	modified := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.time":
			if date == "" {
				date = s.Value
			}
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if modified && commit != "" {
		commit += "-dirty"
	}
	return version, commit, date
}

func format(version, commit, date string) string {
	if strings.TrimSpace(version) == "" {
		version = "dev"
	}
	switch {
	case commit != "" && date != "":
		return version + " (" + commit + " " + date + ")"
	case commit != "":
		return version + " (" + commit + ")"
	case date != "":
		return version + " (" + date + ")"
	default:
		return version
	}
}

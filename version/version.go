// Package version provides build-time version information for dbpool.
//
// Version is set at build time using ldflags:
//
//	go build -ldflags "-X github.com/go-i2p/dbpool/version.Version=1.0.0"
package version

import "runtime/debug"

// Version is the software version, set at build time via ldflags.
var Version = "dev"

// GitCommit is the git commit hash, set at build time via ldflags.
// When unset, the VCS revision recorded by the go tool is used if present.
var GitCommit = ""

// BuildTime is when the binary was built, set at build time via ldflags.
var BuildTime = ""

var readBuildInfo = debug.ReadBuildInfo

// Full returns the version string including commit and build time if available.
func Full() string {
	v := Version
	if c := commit(); c != "" {
		v += "-" + c
	}
	if BuildTime != "" {
		v += " (" + BuildTime + ")"
	}
	return v
}

func commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return ""
}

// Package version reports the build of the running binary.
package version

import (
	"runtime/debug"
	"strings"
)

// SemVer is set at build time for releases:
//
//	-ldflags "-X github.com/hookvibe/hookcode-sub000/internals/version.SemVer=1.2.3"
var SemVer = "0.1.0-dev"

// Version returns SemVer with the VCS revision as build metadata when the
// binary was built from a checkout, e.g. 0.1.0-dev+a1b2c3d4e5f6.dirty.
func Version() string {
	v := strings.TrimSpace(SemVer)
	if v == "" {
		v = "0.0.0-dev"
	}
	meta := revision()
	if meta == "" {
		return v
	}
	if strings.Contains(v, "+") {
		return v + "." + meta
	}
	return v + "+" + meta
}

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return ""
	}
	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = strings.TrimSpace(s.Value)
		case "vcs.modified":
			dirty = strings.TrimSpace(s.Value) == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += ".dirty"
	}
	return rev
}

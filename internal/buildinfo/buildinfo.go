package buildinfo

import (
	"runtime/debug"
)

const length = 7

// version is set at link time with -ldflags "-X github.com/polygonid/verifier-node/internal/buildinfo.version=v1.0.0"
var version = "dev"

// Version returns the release of the binary followed by the short vcs revision when known.
func Version() string {
	if rev := Revision(); rev != "" {
		return version + "-" + rev
	}
	return version
}

// Revision returns the revision of the current build.
func Revision() (rev string) {
	rev = get("vcs.revision")
	if len(rev) > length {
		rev = rev[:length]
	}
	return
}

func get(key string) string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == key {
				return setting.Value
			}
		}
	}
	return ""
}

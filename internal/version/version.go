// Package version exposes build metadata stamped into the binary.
package version

import "runtime"

// Populated through -ldflags "-X ..." when building a release; the
// defaults identify an unstamped development build.
var (
	// Version is the release tag.
	Version = "dev"
	// Commit is the short or full git SHA the binary was built from.
	Commit = "unknown"
	// BuildTime is the timestamp of the build, RFC 3339.
	BuildTime = "unknown"
)

// Info bundles the stamped values together with the compiling Go runtime.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get reports the build metadata of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

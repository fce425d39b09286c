// Package version renders the build banner. Release and commit are stamped
// at link time:
//
//	go build -ldflags "-X .../internal/version.release=v1.2.0 \
//	                   -X .../internal/version.commit=$(git rev-parse HEAD)"
//
// Unstamped binaries fall back to the VCS revision recorded in the module
// build info, when present.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	release = "dev"
	commit  = ""
)

// String returns the one-line version banner for logs and -version.
func String() string {
	rev := commit
	if rev == "" {
		rev = vcsRevision()
	}
	return render(release, rev)
}

func render(release, rev string) string {
	if rev == "" {
		return fmt.Sprintf("agentbus %s (%s)", release, runtime.Version())
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return fmt.Sprintf("agentbus %s @%s (%s)", release, rev, runtime.Version())
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

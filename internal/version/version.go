package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the application version, set via ldflags during build.
	Version = "dev"
	// GitCommit is the git commit hash, set via ldflags during build.
	GitCommit = "unknown"
	// BuildDate is the build timestamp, set via ldflags during build.
	BuildDate = "unknown"
)

// Info contains version and build metadata, surfaced by the status API.
type Info struct {
	Version   string `json:"version" example:"1.4.0" doc:"Application version"`
	GitCommit string `json:"git_commit" doc:"Git commit hash of the build"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	GoVersion string `json:"go_version" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target OS and architecture"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a single-line human-readable version.
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildDate)
}

package version

import (
	"fmt"
	"runtime"

	goversion "github.com/hashicorp/go-version"

	"github.com/satishbabariya/contentql/schema"
)

var (
	// Version is the version of the CLI
	Version = "0.1.0"
	// BuildDate is the build date
	BuildDate = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Info holds version information
type Info struct {
	Version       string
	BuildDate     string
	GitCommit     string
	GoVersion     string
	Platform      string
	ProjectFormat string
}

// Get returns version information
func Get() Info {
	return Info{
		Version:       Version,
		BuildDate:     BuildDate,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		Platform:      fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		ProjectFormat: schema.SupportedFormat,
	}
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("contentql version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString returns a detailed version string
func (i Info) FullString() string {
	return fmt.Sprintf(`contentql version %s
Build Date: %s
Git Commit: %s
Platform: %s
Go Version: %s
Project Format: %s`, i.Version, i.BuildDate, i.GitCommit, i.Platform, i.GoVersion, i.ProjectFormat)
}

// Newer reports whether latest is a newer release than the running version
func Newer(latest string) (bool, error) {
	current, err := goversion.NewVersion(Version)
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	l, err := goversion.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("invalid latest version format: %w", err)
	}
	return current.LessThan(l), nil
}

// Package version holds build identification stamped in at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v0.3.0 \
//	  -X .../internal/version.GitSHA=$(git rev-parse --short HEAD) \
//	  -X .../internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// The API exposes these under /api/version.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

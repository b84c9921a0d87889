package buildconfig

// Build-time variables injected via ldflags:
//
//	-X github.com/mediationai/mediator/internal/buildconfig.version=v1.2.0
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = ""
)

const serviceName = "mediator"

// Version returns the build version
func Version() string {
	return version
}

// Commit returns the git commit hash
func Commit() string {
	return commit
}

// VersionInfo returns full version information for the health endpoint.
func VersionInfo() map[string]string {
	info := map[string]string{
		"service": serviceName,
		"version": version,
		"commit":  commit,
	}
	if buildTime != "" {
		info["build_time"] = buildTime
	}
	return info
}

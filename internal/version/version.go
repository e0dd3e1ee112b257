// Package version reports build metadata injected at link time:
//
//	go build -ldflags "-X github.com/ajolla/ottowrite-sub001/internal/version.Version=v1.2.3 \
//	  -X github.com/ajolla/ottowrite-sub001/internal/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import "runtime/debug"

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the linked version, falling back to the module version
// recorded by the Go toolchain.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func GetBuildInfo() map[string]string {
	return map[string]string{
		"version":    GetVersion(),
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}
}

package version

import "fmt"

// Version, GitCommit and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/nocauto/noc-engine/pkg/version.Version=v1.0.0 \
//	  -X github.com/nocauto/noc-engine/pkg/version.GitCommit=abc1234 \
//	  -X github.com/nocauto/noc-engine/pkg/version.BuildDate=2026-01-01"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns Version, GitCommit and BuildDate as one line.
func Info() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

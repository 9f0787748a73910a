package cli

import "fmt"

// Build information, set via -ldflags "-X".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func versionString() string {
	return fmt.Sprintf("covreport %s (commit %s, built %s)", Version, Commit, Date)
}

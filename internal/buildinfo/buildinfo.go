// Package buildinfo carries build metadata stamped into release builds.
package buildinfo

// Set at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

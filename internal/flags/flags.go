package flags

// Package flags defines canonical CLI flag names shared across commands.
// Keeping these as constants helps avoid drift between Cobra flag wiring and
// other code paths that reference flags by name.
// IMPORTANT: These are flag *names* without leading dashes.
const (
	// Run
	FlagConfig      = "config"
	FlagDryRun      = "dry-run"
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagFailFast    = "fail-fast"
	FlagOut         = "out"

	// Init
	FlagOutput = "output"
	FlagForce  = "force"

	// Global
	FlagVerbose = "verbose"
)

package engine

import "time"

// DefaultConcurrency is the worker pool width when none is configured.
const DefaultConcurrency = 4

// DefaultCommandTimeout bounds each external command invocation.
const DefaultCommandTimeout = 10 * time.Minute

// RunOptions are immutable for the lifetime of a run.
type RunOptions struct {
	// Concurrency is the worker pool width. Must be >= 1.
	Concurrency int

	// ExitOnFirstFailure stops dispatching new repositories once any
	// pipeline terminates failed. In-flight pipelines finish.
	ExitOnFirstFailure bool

	// ContinueOnCommandError keeps a pipeline going when a pre or post
	// command exits non-zero.
	ContinueOnCommandError bool

	// DryRun reports intended actions without invoking clone, patch,
	// commit, or review. The patch procedure is never executed in a dry
	// run: an arbitrary script cannot be assumed side-effect free.
	DryRun bool

	Verbose bool

	// CommandTimeout bounds each external command. Zero means
	// DefaultCommandTimeout.
	CommandTimeout time.Duration
}

// RepositoryDescriptor describes one repository to process. The commit
// message is already rendered for this repository; the engine performs no
// templating.
type RepositoryDescriptor struct {
	URL           string
	Name          string
	Branch        string
	CreateBranch  bool
	StayOnBranch  bool
	CommitMessage string
}

// PatchSpec describes the change procedure shared by every repository in
// the series.
type PatchSpec struct {
	// ScriptPath is the executable patch procedure, invoked with the
	// repository directory as working directory and no arguments.
	ScriptPath string

	PreCommands  []string
	PostCommands []string

	Commit bool
	Review bool
	Topic  string
}

// TestSpec describes the optional validation command run between patching
// and committing.
type TestSpec struct {
	Enabled  bool
	Blocking bool
	Command  string
}

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"roller/internal/command"
	"roller/internal/output"
	"roller/internal/report"
	"roller/internal/workspace"
)

// ExitCode maps a finished run to the process exit contract:
//
//	0 = clean run, every repository succeeded or had no changes
//	1 = at least one repository failed (or was never attempted)
//	3 = fatal error, the run did not execute
func ExitCode(rep report.RunReport, fatal bool) int {
	if fatal {
		return 3
	}
	if !rep.Clean() {
		return 1
	}
	return 0
}

// Engine wires the workspace manager, scheduler, and pipeline together for
// one run and streams lifecycle events to the output sinks.
type Engine struct {
	Options RunOptions
	Patch   PatchSpec
	Tests   TestSpec

	Workspaces *workspace.Manager
	Output     *output.Manager

	// runner is a test seam; nil means a real ExecRunner bound to
	// Options.CommandTimeout.
	runner command.Runner

	// runRepo is a test seam for the per-repository pipeline. If nil, the
	// Engine builds a real Pipeline.
	runRepo func(ctx context.Context, desc RepositoryDescriptor) report.RepositoryOutcome
}

func New(opts RunOptions, patch PatchSpec, tests TestSpec, ws *workspace.Manager, out *output.Manager) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	return &Engine{
		Options:    opts,
		Patch:      patch,
		Tests:      tests,
		Workspaces: ws,
		Output:     out,
	}
}

// validatePatchScript checks the configured patch procedure up front and
// makes it executable, so a bad path fails the run before any repository is
// touched. The returned path is absolute: the script later runs with each
// repository directory as working directory, where a relative path would no
// longer resolve.
func validatePatchScript(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("patch script not found: %s", path)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("patch script is not a file: %s", path)
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("making patch script executable: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving patch script path: %w", err)
	}
	return abs, nil
}

// Run executes the whole series and returns the aggregated report. The
// returned error is non-nil only for run-fatal conditions (bad patch
// script, run root allocation failure); per-repository failures are
// reported through the RunReport.
func (e *Engine) Run(ctx context.Context, descs []RepositoryDescriptor) (report.RunReport, error) {
	scriptPath, err := validatePatchScript(e.Patch.ScriptPath)
	if err != nil {
		return report.RunReport{}, err
	}
	e.Patch.ScriptPath = scriptPath

	root, err := e.Workspaces.Allocate(workspace.NewRunID())
	if err != nil {
		return report.RunReport{}, err
	}

	e.write(output.Event{
		Type:      output.EventRunStarted,
		Topic:     e.Patch.Topic,
		Workspace: root,
		Total:     len(descs),
	})

	runRepo := e.runRepo
	if runRepo == nil {
		runner := e.runner
		if runner == nil {
			runner = command.NewExecRunner(e.Options.CommandTimeout)
		}
		pipeline := NewPipeline(e.Options, e.Patch, e.Tests, e.Workspaces, root, runner)
		pipeline.emit = func(repo string, step report.StepResult) {
			e.write(output.Event{Type: output.EventStep, Repo: repo, Step: &step})
		}
		runRepo = pipeline.Run
	}

	total := len(descs)
	sched, err := NewScheduler(e.Options.Concurrency, func(ctx context.Context, i int, desc RepositoryDescriptor) report.RepositoryOutcome {
		e.write(output.Event{Type: output.EventRepoStarted, Repo: desc.Name, Index: i + 1, Total: total})
		out := runRepo(ctx, desc)
		e.write(output.Event{Type: output.EventRepoFinished, Repo: desc.Name, Outcome: &out})
		return out
	})
	if err != nil {
		return report.RunReport{}, err
	}

	outcomes := sched.Execute(ctx, descs, e.Options.ExitOnFirstFailure)
	rep := report.Build(outcomes)

	e.write(output.Event{Type: output.EventRunFinished, Report: &rep})
	return rep, nil
}

func (e *Engine) write(ev output.Event) {
	if e.Output == nil {
		return
	}
	if err := e.Output.Write(ev); err != nil && e.Options.Verbose {
		fmt.Fprintf(os.Stderr, "output sink error: %v\n", err)
	}
}

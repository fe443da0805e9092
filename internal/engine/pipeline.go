package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roller/internal/command"
	"roller/internal/report"
	"roller/internal/vcs"
	"roller/internal/workspace"
)

// repoOperator abstracts vcs.Operator so pipeline tests can substitute a
// fake without touching git.
type repoOperator interface {
	Clone(ctx context.Context, url string) error
	CurrentBranch(ctx context.Context) (string, error)
	HasChanges(ctx context.Context) (bool, error)
	SwitchBranch(ctx context.Context, name string, create bool) error
	Checkout(ctx context.Context, name string) error
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) (string, error)
	SetupReview(ctx context.Context) error
	SubmitReview(ctx context.Context, topic string) error
}

// Pipeline runs the per-repository state machine:
//
//	Cloning → PreCommands → BranchSwitch → Patching → ChangeDetection →
//	Testing → Committing → PostCommands → Reviewing → Terminal
//
// One Pipeline value is shared by all workers; per-repository state lives
// in repoRun. A pipeline never touches another repository's workspace.
type Pipeline struct {
	opts  RunOptions
	patch PatchSpec
	tests TestSpec

	workspaces *workspace.Manager
	root       string
	runner     command.Runner

	// newOperator is a test seam; nil means the real vcs.Operator.
	newOperator func(r command.Runner, dir string) repoOperator

	// emit receives step events for live progress output. May be nil.
	emit func(repo string, step report.StepResult)
}

func NewPipeline(opts RunOptions, patch PatchSpec, tests TestSpec, ws *workspace.Manager, root string, runner command.Runner) *Pipeline {
	return &Pipeline{
		opts:       opts,
		patch:      patch,
		tests:      tests,
		workspaces: ws,
		root:       root,
		runner:     runner,
	}
}

func (p *Pipeline) operator(dir string) repoOperator {
	if p.newOperator != nil {
		return p.newOperator(p.runner, dir)
	}
	return vcs.NewOperator(p.runner, dir)
}

// repoRun is the mutable state of one pipeline execution.
type repoRun struct {
	p    *Pipeline
	desc RepositoryDescriptor
	out  *report.RepositoryOutcome

	op             repoOperator
	originalBranch string
	switched       bool
}

// Run executes the pipeline for one repository and returns its outcome.
// Errors never escape; every failure is recorded as a StepResult.
func (p *Pipeline) Run(ctx context.Context, desc RepositoryDescriptor) report.RepositoryOutcome {
	start := time.Now()
	out := report.RepositoryOutcome{Repo: desc.Name}

	r := &repoRun{p: p, desc: desc, out: &out}
	out.Status = r.execute(ctx)
	out.Duration = time.Since(start)
	return out
}

func (r *repoRun) record(s report.StepResult) {
	r.out.Steps = append(r.out.Steps, s)
	if r.p.emit != nil {
		r.p.emit(r.desc.Name, s)
	}
}

func (r *repoRun) fail(step report.Step, kind report.FailureKind, detail string) report.Status {
	r.record(report.StepFail(step, kind, detail))
	return report.StatusFailed
}

func (r *repoRun) execute(ctx context.Context) report.Status {
	if r.p.opts.DryRun {
		return r.dryRun()
	}

	// Cloning
	repoDir, err := r.p.workspaces.AllocateRepoDir(r.p.root, r.desc.Name)
	if err != nil {
		return r.fail(report.StepClone, report.FailWorkspace, err.Error())
	}
	r.op = r.p.operator(repoDir)
	if err := r.op.Clone(ctx, r.desc.URL); err != nil {
		return r.fail(report.StepClone, report.FailClone, err.Error())
	}
	r.record(report.StepOK(report.StepClone))

	// PreCommands
	if st, ok := r.runCommands(ctx, repoDir, r.p.patch.PreCommands, report.StepPreCommand, report.FailPreCommand); !ok {
		return st
	}

	// BranchSwitch
	if st, ok := r.switchBranch(ctx); !ok {
		return st
	}

	// Patching
	res, err := r.p.runner.Run(ctx, repoDir, r.p.patch.ScriptPath)
	if err != nil || !res.OK() {
		return r.fail(report.StepPatch, commandFailKind(res, err, report.FailPatch), commandFailDetail(res, err))
	}
	r.record(report.StepOK(report.StepPatch))

	// ChangeDetection
	changed, err := r.op.HasChanges(ctx)
	if err != nil {
		return r.fail(report.StepChangeDetect, report.FailStatus, err.Error())
	}
	if !changed {
		r.record(report.StepSkip(report.StepChangeDetect, "no changes detected"))
		r.restoreBranch(ctx)
		return report.StatusSkippedNoChange
	}
	r.record(report.StepOK(report.StepChangeDetect))

	// Testing
	if st, ok := r.runTests(ctx, repoDir); !ok {
		return st
	}

	// Committing
	if st, ok := r.commit(ctx); !ok {
		return st
	}

	// PostCommands
	if st, ok := r.runCommands(ctx, repoDir, r.p.patch.PostCommands, report.StepPostCommand, report.FailPostCmd); !ok {
		return st
	}

	// Reviewing: failure here never erases the commit, so it is recorded
	// as a warning on a succeeded outcome.
	r.review(ctx)

	r.restoreBranch(ctx)
	return report.StatusSucceeded
}

func (r *repoRun) runCommands(ctx context.Context, dir string, commands []string, step report.Step, kind report.FailureKind) (report.Status, bool) {
	for _, cmd := range commands {
		res, err := r.p.runner.RunShell(ctx, dir, cmd)
		if err == nil && res.OK() {
			r.record(report.StepResult{Step: step, Status: report.StepSucceeded, Reason: cmd})
			continue
		}
		detail := fmt.Sprintf("%s: %s", cmd, commandFailDetail(res, err))
		r.record(report.StepFail(step, commandFailKind(res, err, kind), detail))
		if !r.p.opts.ContinueOnCommandError {
			return report.StatusFailed, false
		}
	}
	return "", true
}

func (r *repoRun) switchBranch(ctx context.Context) (report.Status, bool) {
	if r.desc.Branch == "" {
		r.record(report.StepSkip(report.StepBranch, "no target branch configured"))
		return "", true
	}

	current, err := r.op.CurrentBranch(ctx)
	if err != nil {
		return r.fail(report.StepBranch, report.FailBranch, err.Error()), false
	}
	r.originalBranch = current

	// Never switch over uncommitted work; it would leak into the patch
	// commit or be lost.
	dirty, err := r.op.HasChanges(ctx)
	if err != nil {
		return r.fail(report.StepBranch, report.FailBranch, err.Error()), false
	}
	if dirty {
		return r.fail(report.StepBranch, report.FailBranch,
			"repository has uncommitted changes before branch switch"), false
	}

	if err := r.op.SwitchBranch(ctx, r.desc.Branch, r.desc.CreateBranch); err != nil {
		return r.fail(report.StepBranch, report.FailBranch, err.Error()), false
	}
	r.switched = true
	r.record(report.StepResult{Step: report.StepBranch, Status: report.StepSucceeded, Reason: r.desc.Branch})
	return "", true
}

func (r *repoRun) runTests(ctx context.Context, dir string) (report.Status, bool) {
	if !r.p.tests.Enabled {
		r.record(report.StepSkip(report.StepTest, "tests disabled"))
		return "", true
	}

	res, err := r.p.runner.RunShell(ctx, dir, r.p.tests.Command)
	if err == nil && res.OK() {
		r.record(report.StepOK(report.StepTest))
		return "", true
	}

	detail := fmt.Sprintf("%s: %s", r.p.tests.Command, commandFailDetail(res, err))
	r.record(report.StepFail(report.StepTest, commandFailKind(res, err, report.FailTest), detail))
	if r.p.tests.Blocking {
		// The repository stays on the target branch with the patch applied
		// so the operator can inspect why the tests failed.
		return report.StatusTestFailed, false
	}
	// Non-blocking test failure is a warning; the pipeline proceeds to
	// commit.
	return "", true
}

func (r *repoRun) commit(ctx context.Context) (report.Status, bool) {
	if !r.p.patch.Commit {
		r.record(report.StepSkip(report.StepCommit, "commit disabled"))
		return "", true
	}

	if err := r.op.StageAll(ctx); err != nil {
		return r.fail(report.StepCommit, report.FailCommit, err.Error()), false
	}
	hash, err := r.op.Commit(ctx, r.desc.CommitMessage)
	if err != nil {
		return r.fail(report.StepCommit, report.FailCommit, err.Error()), false
	}
	r.out.Commit = hash
	r.record(report.StepResult{Step: report.StepCommit, Status: report.StepSucceeded, Reason: hash})
	return "", true
}

func (r *repoRun) review(ctx context.Context) {
	if !r.p.patch.Review {
		r.record(report.StepSkip(report.StepReview, "review disabled"))
		return
	}

	if err := r.op.SetupReview(ctx); err != nil {
		r.record(report.StepFail(report.StepReview, report.FailReview, err.Error()))
		return
	}
	if err := r.op.SubmitReview(ctx, r.p.patch.Topic); err != nil {
		r.record(report.StepFail(report.StepReview, report.FailReview, err.Error()))
		return
	}
	r.record(report.StepOK(report.StepReview))
}

// restoreBranch switches back to the branch that was checked out before the
// pipeline ran. Best effort: the commit is already durable, so a failure
// here is recorded but never changes the outcome.
func (r *repoRun) restoreBranch(ctx context.Context) {
	if !r.switched || r.originalBranch == "" {
		return
	}
	if r.desc.StayOnBranch {
		r.record(report.StepSkip(report.StepRestoreBranch, "stay-on-branch set"))
		return
	}
	if err := r.op.Checkout(ctx, r.originalBranch); err != nil {
		r.record(report.StepFail(report.StepRestoreBranch, report.FailBranch, err.Error()))
		return
	}
	r.record(report.StepResult{Step: report.StepRestoreBranch, Status: report.StepSucceeded, Reason: r.originalBranch})
}

// dryRun reports what would run, based purely on configuration. No clone,
// patch, commit, or review is ever invoked.
func (r *repoRun) dryRun() report.Status {
	would := func(step report.Step, what string) {
		r.record(report.StepSkip(step, "dry run: would "+what))
	}

	would(report.StepClone, "clone "+r.desc.URL)
	for _, cmd := range r.p.patch.PreCommands {
		would(report.StepPreCommand, "run "+cmd)
	}
	if r.desc.Branch != "" {
		verb := "switch to branch "
		if r.desc.CreateBranch {
			verb = "switch to (or create) branch "
		}
		would(report.StepBranch, verb+r.desc.Branch)
	}
	would(report.StepPatch, "execute patch script "+r.p.patch.ScriptPath)
	if r.p.tests.Enabled {
		would(report.StepTest, "run tests: "+r.p.tests.Command)
	}
	if r.p.patch.Commit {
		would(report.StepCommit, "commit changes")
	}
	for _, cmd := range r.p.patch.PostCommands {
		would(report.StepPostCommand, "run "+cmd)
	}
	if r.p.patch.Review {
		would(report.StepReview, "submit for review")
	}
	return report.StatusSucceeded
}

func commandFailKind(res command.Result, err error, kind report.FailureKind) report.FailureKind {
	if res.TimedOut || errors.Is(err, command.ErrTimeout) {
		return report.FailTimeout
	}
	return kind
}

func commandFailDetail(res command.Result, err error) string {
	if res.TimedOut {
		return "command timed out"
	}
	if err != nil {
		return err.Error()
	}
	if line := firstNonEmptyLine(res.Stderr); line != "" {
		return fmt.Sprintf("exit status %d: %s", res.ExitCode, line)
	}
	return fmt.Sprintf("exit status %d", res.ExitCode)
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

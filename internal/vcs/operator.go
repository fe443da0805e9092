// Package vcs wraps the external git and git-review command line clients as
// discrete, individually failable operations over one repository directory.
// The engine treats both tools as black boxes: an exit status plus captured
// output text.
package vcs

import (
	"context"
	"fmt"
	"strings"

	"roller/internal/command"
)

// CloneError reports a failed clone of one repository URL.
type CloneError struct {
	URL    string
	Detail string
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone of %s failed: %s", e.URL, e.Detail)
}

// BranchNotFoundError reports a switch to a branch that exists neither
// locally nor on the remote.
type BranchNotFoundError struct {
	Name string
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("branch %q does not exist (use create-branch to create it)", e.Name)
}

// CommitError reports a failed commit, including the case where the local
// identity needed for the sign-off trailer is unset.
type CommitError struct {
	Detail string
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed: %s", e.Detail)
}

// ReviewSubmissionError reports a failed review submission. It is distinct
// from CommitError so callers can keep a local commit even when submission
// fails.
type ReviewSubmissionError struct {
	Detail string
}

func (e *ReviewSubmissionError) Error() string {
	return fmt.Sprintf("review submission failed: %s", e.Detail)
}

// Operator is bound to one repository directory. It is not safe for
// concurrent use; each pipeline owns its own instance.
type Operator struct {
	runner command.Runner
	dir    string
}

func NewOperator(runner command.Runner, dir string) *Operator {
	return &Operator{runner: runner, dir: dir}
}

// Dir returns the repository directory this operator is bound to.
func (o *Operator) Dir() string { return o.dir }

// RepoNameFromURL derives the short repository name used in workspace paths
// and templated messages. It handles HTTPS, SSH, and local path forms:
//
//	https://github.com/org/repo.git -> repo
//	git@github.com:org/repo.git     -> repo
//	/path/to/local/repo             -> repo
func RepoNameFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	name := trimmed[strings.LastIndexAny(trimmed, "/:")+1:]
	return strings.TrimSuffix(name, ".git")
}

// Clone clones url into the operator's directory. The parent directory must
// already exist; the target itself is created by git.
func (o *Operator) Clone(ctx context.Context, url string) error {
	res, err := o.runner.Run(ctx, "", "git", "clone", url, o.dir)
	if err != nil {
		return &CloneError{URL: url, Detail: err.Error()}
	}
	if !res.OK() {
		return &CloneError{URL: url, Detail: firstLine(res.Stderr)}
	}
	return nil
}

// CurrentBranch returns the checked out branch name, or an empty string for
// a detached HEAD.
func (o *Operator) CurrentBranch(ctx context.Context) (string, error) {
	res, err := o.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(res.Stdout)
	if branch == "HEAD" {
		return "", nil
	}
	return branch, nil
}

// HasChanges reports whether the work tree is dirty. It only errors for a
// broken repository state, never for "no changes".
func (o *Operator) HasChanges(ctx context.Context) (bool, error) {
	res, err := o.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// BranchExists checks the local refs first, then the origin remote.
func (o *Operator) BranchExists(ctx context.Context, name string) (local, remote bool, err error) {
	res, err := o.runner.Run(ctx, o.dir, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		return false, false, err
	}
	if res.OK() {
		return true, false, nil
	}
	res, err = o.runner.Run(ctx, o.dir, "git", "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+name)
	if err != nil {
		return false, false, err
	}
	return false, res.OK(), nil
}

// SwitchBranch checks out name. With create set, a missing branch is created
// from the current HEAD. Without it, a branch that only exists on the remote
// is checked out with tracking, and a branch that exists nowhere yields
// BranchNotFoundError.
func (o *Operator) SwitchBranch(ctx context.Context, name string, create bool) error {
	local, remote, err := o.BranchExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking branch %q: %w", name, err)
	}

	switch {
	case local:
		return o.Checkout(ctx, name)
	case remote:
		return o.gitOrError(ctx, "checkout", "-b", name, "--track", "origin/"+name)
	case create:
		return o.gitOrError(ctx, "checkout", "-b", name)
	default:
		return &BranchNotFoundError{Name: name}
	}
}

// Checkout switches to an existing branch.
func (o *Operator) Checkout(ctx context.Context, name string) error {
	return o.gitOrError(ctx, "checkout", name)
}

// StageAll stages every change in the work tree.
func (o *Operator) StageAll(ctx context.Context) error {
	return o.gitOrError(ctx, "add", "-A")
}

// Commit creates a signed-off commit and returns its short hash. The -s flag
// appends the Signed-off-by trailer from the local identity; git failing
// because that identity is unset surfaces here as a CommitError.
func (o *Operator) Commit(ctx context.Context, message string) (string, error) {
	res, err := o.run(ctx, "commit", "-s", "-m", message)
	if err != nil {
		return "", &CommitError{Detail: err.Error()}
	}
	if !res.OK() {
		return "", &CommitError{Detail: firstLine(res.Stderr)}
	}

	res, err = o.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil || !res.OK() {
		// The commit exists even if we could not read its hash back.
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// SetupReview prepares the repository for Gerrit via git-review. The
// underlying `git review -s` is idempotent, so calling it on an already
// configured repository is harmless.
func (o *Operator) SetupReview(ctx context.Context) error {
	res, err := o.run(ctx, "review", "-s")
	if err != nil {
		return &ReviewSubmissionError{Detail: err.Error()}
	}
	if !res.OK() {
		return &ReviewSubmissionError{Detail: firstLine(res.Stderr)}
	}
	return nil
}

// SubmitReview pushes the commit to the review system, grouped under topic
// when one is given.
func (o *Operator) SubmitReview(ctx context.Context, topic string) error {
	args := []string{"review"}
	if topic != "" {
		args = append(args, "-t", topic)
	}
	res, err := o.run(ctx, args...)
	if err != nil {
		return &ReviewSubmissionError{Detail: err.Error()}
	}
	if !res.OK() {
		return &ReviewSubmissionError{Detail: firstLine(res.Stderr)}
	}
	return nil
}

func (o *Operator) run(ctx context.Context, args ...string) (command.Result, error) {
	return o.runner.Run(ctx, o.dir, "git", args...)
}

func (o *Operator) gitOrError(ctx context.Context, args ...string) error {
	res, err := o.run(ctx, args...)
	if err != nil {
		return fmt.Errorf("git %s: %w", args[0], err)
	}
	if !res.OK() {
		return fmt.Errorf("git %s: %s", args[0], firstLine(res.Stderr))
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "exit status non-zero"
	}
	return s
}

package vcs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"roller/internal/command"
)

// fakeRunner returns canned results keyed on the joined argument vector and
// records every invocation for assertions.
type fakeRunner struct {
	results map[string]command.Result
	errs    map[string]error
	calls   []string
	dirs    []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string]command.Result),
		errs:    make(map[string]error),
	}
}

func (f *fakeRunner) key(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func (f *fakeRunner) on(key string, res command.Result) { f.results[key] = res }

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (command.Result, error) {
	k := f.key(name, args)
	f.calls = append(f.calls, k)
	f.dirs = append(f.dirs, dir)
	if err, ok := f.errs[k]; ok {
		return command.Result{ExitCode: -1}, err
	}
	if res, ok := f.results[k]; ok {
		return res, nil
	}
	return command.Result{}, nil
}

func (f *fakeRunner) RunShell(ctx context.Context, dir, commandLine string) (command.Result, error) {
	return f.Run(ctx, dir, "sh", "-c", commandLine)
}

func (f *fakeRunner) sawCall(key string) bool {
	for _, c := range f.calls {
		if c == key {
			return true
		}
	}
	return false
}

func TestRepoNameFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://github.com/org/repo.git", "repo"},
		{"https://github.com/org/repo", "repo"},
		{"https://github.com/org/repo/", "repo"},
		{"git@github.com:org/repo.git", "repo"},
		{"git@host.example:repo.git", "repo"},
		{"/path/to/local/repo", "repo"},
	}
	for _, tc := range cases {
		if got := RepoNameFromURL(tc.url); got != tc.want {
			t.Errorf("RepoNameFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestClone(t *testing.T) {
	r := newFakeRunner()
	op := NewOperator(r, "/ws/repo")

	if err := op.Clone(context.Background(), "https://example.com/org/repo.git"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if !r.sawCall("git clone https://example.com/org/repo.git /ws/repo") {
		t.Errorf("unexpected calls: %v", r.calls)
	}
}

func TestClone_Failure(t *testing.T) {
	r := newFakeRunner()
	r.on("git clone url /ws/repo", command.Result{ExitCode: 128, Stderr: "fatal: repository not found\nmore"})
	op := NewOperator(r, "/ws/repo")

	err := op.Clone(context.Background(), "url")
	var cloneErr *CloneError
	if !errors.As(err, &cloneErr) {
		t.Fatalf("err = %v, want *CloneError", err)
	}
	if !strings.Contains(cloneErr.Detail, "repository not found") {
		t.Errorf("detail = %q", cloneErr.Detail)
	}
	if strings.Contains(cloneErr.Detail, "more") {
		t.Errorf("detail should be trimmed to the first line: %q", cloneErr.Detail)
	}
}

func TestCurrentBranch(t *testing.T) {
	r := newFakeRunner()
	r.on("git rev-parse --abbrev-ref HEAD", command.Result{Stdout: "main\n"})
	op := NewOperator(r, "/ws/repo")

	branch, err := op.CurrentBranch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if branch != "main" {
		t.Errorf("branch = %q, want main", branch)
	}
	if r.dirs[0] != "/ws/repo" {
		t.Errorf("ran in %q, want /ws/repo", r.dirs[0])
	}
}

func TestCurrentBranch_DetachedHead(t *testing.T) {
	r := newFakeRunner()
	r.on("git rev-parse --abbrev-ref HEAD", command.Result{Stdout: "HEAD\n"})
	op := NewOperator(r, "/ws/repo")

	branch, err := op.CurrentBranch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if branch != "" {
		t.Errorf("branch = %q, want empty for detached HEAD", branch)
	}
}

func TestHasChanges(t *testing.T) {
	r := newFakeRunner()
	r.on("git status --porcelain", command.Result{Stdout: " M file.go\n"})
	op := NewOperator(r, "/ws/repo")

	dirty, err := op.HasChanges(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !dirty {
		t.Error("expected changes")
	}

	r.on("git status --porcelain", command.Result{Stdout: "\n"})
	dirty, err = op.HasChanges(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if dirty {
		t.Error("expected a clean tree")
	}
}

func TestSwitchBranch_LocalExists(t *testing.T) {
	r := newFakeRunner()
	r.on("git show-ref --verify --quiet refs/heads/feature", command.Result{ExitCode: 0})
	op := NewOperator(r, "/ws/repo")

	if err := op.SwitchBranch(context.Background(), "feature", false); err != nil {
		t.Fatal(err)
	}
	if !r.sawCall("git checkout feature") {
		t.Errorf("expected plain checkout, calls: %v", r.calls)
	}
}

func TestSwitchBranch_RemoteOnly(t *testing.T) {
	r := newFakeRunner()
	r.on("git show-ref --verify --quiet refs/heads/feature", command.Result{ExitCode: 1})
	r.on("git show-ref --verify --quiet refs/remotes/origin/feature", command.Result{ExitCode: 0})
	op := NewOperator(r, "/ws/repo")

	if err := op.SwitchBranch(context.Background(), "feature", false); err != nil {
		t.Fatal(err)
	}
	if !r.sawCall("git checkout -b feature --track origin/feature") {
		t.Errorf("expected tracking checkout, calls: %v", r.calls)
	}
}

func TestSwitchBranch_MissingWithCreate(t *testing.T) {
	r := newFakeRunner()
	r.on("git show-ref --verify --quiet refs/heads/feature", command.Result{ExitCode: 1})
	r.on("git show-ref --verify --quiet refs/remotes/origin/feature", command.Result{ExitCode: 1})
	op := NewOperator(r, "/ws/repo")

	if err := op.SwitchBranch(context.Background(), "feature", true); err != nil {
		t.Fatal(err)
	}
	if !r.sawCall("git checkout -b feature") {
		t.Errorf("expected branch creation, calls: %v", r.calls)
	}
}

func TestSwitchBranch_MissingWithoutCreate(t *testing.T) {
	r := newFakeRunner()
	r.on("git show-ref --verify --quiet refs/heads/feature", command.Result{ExitCode: 1})
	r.on("git show-ref --verify --quiet refs/remotes/origin/feature", command.Result{ExitCode: 1})
	op := NewOperator(r, "/ws/repo")

	err := op.SwitchBranch(context.Background(), "feature", false)
	var notFound *BranchNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want *BranchNotFoundError", err)
	}
	if notFound.Name != "feature" {
		t.Errorf("Name = %q, want feature", notFound.Name)
	}
}

func TestCommit_SignOffAndHash(t *testing.T) {
	r := newFakeRunner()
	r.on("git commit -s -m msg", command.Result{ExitCode: 0})
	r.on("git rev-parse --short HEAD", command.Result{Stdout: "abc1234\n"})
	op := NewOperator(r, "/ws/repo")

	hash, err := op.Commit(context.Background(), "msg")
	if err != nil {
		t.Fatal(err)
	}
	if hash != "abc1234" {
		t.Errorf("hash = %q, want abc1234", hash)
	}
	if !r.sawCall("git commit -s -m msg") {
		t.Errorf("commit must carry the sign-off flag, calls: %v", r.calls)
	}
}

func TestCommit_IdentityUnset(t *testing.T) {
	r := newFakeRunner()
	r.on("git commit -s -m msg", command.Result{ExitCode: 128, Stderr: "fatal: unable to auto-detect email address"})
	op := NewOperator(r, "/ws/repo")

	_, err := op.Commit(context.Background(), "msg")
	var commitErr *CommitError
	if !errors.As(err, &commitErr) {
		t.Fatalf("err = %v, want *CommitError", err)
	}
}

func TestSubmitReview(t *testing.T) {
	r := newFakeRunner()
	op := NewOperator(r, "/ws/repo")

	if err := op.SubmitReview(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if !r.sawCall("git review") {
		t.Errorf("calls: %v", r.calls)
	}

	if err := op.SubmitReview(context.Background(), "dep-updates"); err != nil {
		t.Fatal(err)
	}
	if !r.sawCall("git review -t dep-updates") {
		t.Errorf("calls: %v", r.calls)
	}
}

func TestSubmitReview_Failure(t *testing.T) {
	r := newFakeRunner()
	r.on("git review", command.Result{ExitCode: 1, Stderr: "remote rejected"})
	op := NewOperator(r, "/ws/repo")

	err := op.SubmitReview(context.Background(), "")
	var revErr *ReviewSubmissionError
	if !errors.As(err, &revErr) {
		t.Fatalf("err = %v, want *ReviewSubmissionError", err)
	}
}

func TestSetupReview(t *testing.T) {
	r := newFakeRunner()
	op := NewOperator(r, "/ws/repo")

	if err := op.SetupReview(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !r.sawCall("git review -s") {
		t.Errorf("calls: %v", r.calls)
	}
}

// Package report defines the outcome types shared between the engine and the
// output sinks: per-step results, per-repository outcomes, and the aggregate
// run report handed to the presentation layer.
package report

import "time"

// Step identifies one stage of the per-repository pipeline.
type Step string

const (
	StepClone         Step = "clone"
	StepPreCommand    Step = "pre-command"
	StepBranch        Step = "branch"
	StepPatch         Step = "patch"
	StepChangeDetect  Step = "change-detection"
	StepTest          Step = "test"
	StepCommit        Step = "commit"
	StepPostCommand   Step = "post-command"
	StepReview        Step = "review"
	StepRestoreBranch Step = "restore-branch"
)

// StepStatus tags a StepResult.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// FailureKind classifies a failed step for the error taxonomy.
type FailureKind string

const (
	FailClone      FailureKind = "clone"
	FailBranch     FailureKind = "branch"
	FailPatch      FailureKind = "patch"
	FailTest       FailureKind = "test"
	FailCommit     FailureKind = "commit"
	FailReview     FailureKind = "review"
	FailPreCommand FailureKind = "pre-command"
	FailPostCmd    FailureKind = "post-command"
	FailStatus     FailureKind = "status"
	FailTimeout    FailureKind = "timeout"
	FailWorkspace  FailureKind = "workspace"
)

// StepResult is the uniform tagged outcome of one pipeline step. Every step
// reports through this type so the aggregator needs no per-step special
// casing. A Failed step inside an outcome whose Status is Succeeded is a
// warning (non-blocking test failure, review-submission failure).
type StepResult struct {
	Step   Step        `json:"step"`
	Status StepStatus  `json:"status"`
	Reason string      `json:"reason,omitempty"`
	Kind   FailureKind `json:"kind,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

func StepOK(step Step) StepResult {
	return StepResult{Step: step, Status: StepSucceeded}
}

func StepSkip(step Step, reason string) StepResult {
	return StepResult{Step: step, Status: StepSkipped, Reason: reason}
}

func StepFail(step Step, kind FailureKind, detail string) StepResult {
	return StepResult{Step: step, Status: StepFailed, Kind: kind, Detail: detail}
}

// Status is the terminal state of one repository pipeline.
type Status string

const (
	StatusSucceeded       Status = "succeeded"
	StatusSkippedNoChange Status = "skipped-no-change"
	StatusTestFailed      Status = "test-failed"
	StatusFailed          Status = "failed"
	StatusNotAttempted    Status = "not-attempted"
)

// RepositoryOutcome records how one repository fared. It is created by the
// pipeline that processed the repository and is read-only afterwards.
type RepositoryOutcome struct {
	Repo     string        `json:"repo"`
	Status   Status        `json:"status"`
	Steps    []StepResult  `json:"steps,omitempty"`
	Commit   string        `json:"commit,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the outcome should count against the run (and
// trigger exit-on-first-failure). Review-submission failures never do; a
// blocked test failure does.
func (o RepositoryOutcome) Failed() bool {
	return o.Status == StatusFailed || o.Status == StatusTestFailed
}

// FailedStep returns the first failed step, if any.
func (o RepositoryOutcome) FailedStep() (StepResult, bool) {
	for _, s := range o.Steps {
		if s.Status == StepFailed {
			return s, true
		}
	}
	return StepResult{}, false
}

// RunReport is the immutable aggregation of a whole run. Outcomes appear in
// original descriptor order regardless of completion timing, so output is
// reproducible across runs.
type RunReport struct {
	Outcomes     []RepositoryOutcome `json:"outcomes"`
	Succeeded    int                 `json:"succeeded"`
	Skipped      int                 `json:"skipped"`
	Failed       int                 `json:"failed"`
	NotAttempted int                 `json:"notAttempted"`
}

// Build derives the summary counts from a slice of outcomes already in
// descriptor order. Test failures count as failures.
func Build(outcomes []RepositoryOutcome) RunReport {
	r := RunReport{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSucceeded:
			r.Succeeded++
		case StatusSkippedNoChange:
			r.Skipped++
		case StatusNotAttempted:
			r.NotAttempted++
		case StatusFailed, StatusTestFailed:
			r.Failed++
		}
	}
	return r
}

// Clean reports whether every scheduled repository either succeeded or was
// skipped for having no changes.
func (r RunReport) Clean() bool {
	return r.Failed == 0 && r.NotAttempted == 0
}

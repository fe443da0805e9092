package output

import "roller/internal/report"

// Event is a lifecycle notification written to sinks while a run executes.
//
// Types: run.started, repo.started, step, repo.finished, run.finished.
// At most one of Step, Outcome, Report is set, depending on the type.
type Event struct {
	Type      string                    `json:"type"`
	Repo      string                    `json:"repo,omitempty"`
	Index     int                       `json:"index,omitempty"`
	Total     int                       `json:"total,omitempty"`
	Topic     string                    `json:"topic,omitempty"`
	Workspace string                    `json:"workspace,omitempty"`
	Step      *report.StepResult        `json:"step,omitempty"`
	Outcome   *report.RepositoryOutcome `json:"outcome,omitempty"`
	Report    *report.RunReport         `json:"report,omitempty"`
}

const (
	EventRunStarted   = "run.started"
	EventRepoStarted  = "repo.started"
	EventStep         = "step"
	EventRepoFinished = "repo.finished"
	EventRunFinished  = "run.finished"
)

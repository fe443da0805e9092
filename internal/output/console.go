package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"roller/internal/report"
)

var (
	glyphOK   = color.New(color.FgGreen).Sprint("✓")
	glyphFail = color.New(color.FgRed).Sprint("✗")
	glyphInfo = color.New(color.FgCyan).Sprint("ℹ")
	glyphWarn = color.New(color.FgYellow).Sprint("!")
)

// ConsoleSink renders run progress and the final summary as human-readable
// text. With multiple workers the per-repo blocks interleave; every line is
// prefixed with the repository name so the stream stays attributable.
type ConsoleSink struct {
	writer  io.Writer
	verbose bool
	mu      sync.Mutex
}

func NewConsoleSink(w io.Writer, verbose bool) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{writer: w, verbose: verbose}
}

func (s *ConsoleSink) Write(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case EventRunStarted:
		topic := ev.Topic
		if topic == "" {
			topic = "unnamed"
		}
		_, err := fmt.Fprintf(s.writer, "Starting patch series: %s\nWorkspace: %s\n\n", topic, ev.Workspace)
		return err
	case EventRepoStarted:
		_, err := fmt.Fprintf(s.writer, "[%d/%d] Processing %s...\n", ev.Index, ev.Total, ev.Repo)
		return err
	case EventStep:
		if ev.Step == nil {
			return nil
		}
		return s.writeStep(ev.Repo, *ev.Step)
	case EventRepoFinished:
		if ev.Outcome == nil {
			return nil
		}
		return s.writeOutcome(*ev.Outcome)
	case EventRunFinished:
		if ev.Report == nil {
			return nil
		}
		return s.writeSummary(*ev.Report)
	default:
		return nil
	}
}

func (s *ConsoleSink) writeStep(repo string, step report.StepResult) error {
	switch step.Status {
	case report.StepSucceeded:
		annotation := ""
		if step.Reason != "" {
			annotation = ": " + step.Reason
		}
		_, err := fmt.Fprintf(s.writer, "  %s %s: %s%s\n", glyphOK, repo, step.Step, annotation)
		return err
	case report.StepSkipped:
		if !s.verbose {
			return nil
		}
		_, err := fmt.Fprintf(s.writer, "  %s %s: %s skipped (%s)\n", glyphInfo, repo, step.Step, step.Reason)
		return err
	case report.StepFailed:
		if _, err := fmt.Fprintf(s.writer, "  %s %s: %s failed [%s]\n", glyphFail, repo, step.Step, step.Kind); err != nil {
			return err
		}
		if step.Detail != "" {
			_, err := fmt.Fprintf(s.writer, "      %s\n", step.Detail)
			return err
		}
		return nil
	default:
		return nil
	}
}

func (s *ConsoleSink) writeOutcome(o report.RepositoryOutcome) error {
	switch o.Status {
	case report.StatusSucceeded:
		if step, warned := o.FailedStep(); warned {
			_, err := fmt.Fprintf(s.writer, "  %s %s: succeeded with warning (%s)\n", glyphWarn, o.Repo, step.Step)
			return err
		}
	case report.StatusSkippedNoChange:
		_, err := fmt.Fprintf(s.writer, "  %s %s: no changes detected, skipping\n", glyphInfo, o.Repo)
		return err
	}
	return nil
}

func (s *ConsoleSink) writeSummary(r report.RunReport) error {
	fmt.Fprintf(s.writer, "\nSummary:\n")
	fmt.Fprintf(s.writer, "  Succeeded: %d\n", r.Succeeded)
	fmt.Fprintf(s.writer, "  Skipped: %d\n", r.Skipped)
	fmt.Fprintf(s.writer, "  Failed: %d\n", r.Failed)
	if r.NotAttempted > 0 {
		fmt.Fprintf(s.writer, "  Not attempted: %d\n", r.NotAttempted)
	}

	if r.Failed > 0 {
		fmt.Fprintf(s.writer, "\nFailed repositories:\n")
		for _, o := range r.Outcomes {
			if !o.Failed() {
				continue
			}
			detail := string(o.Status)
			if step, ok := o.FailedStep(); ok {
				detail = fmt.Sprintf("%s step failed", step.Step)
				if step.Detail != "" {
					detail += ": " + step.Detail
				}
			}
			fmt.Fprintf(s.writer, "  - %s: %s\n", o.Repo, detail)
		}
	}
	return nil
}

func (s *ConsoleSink) Close() error { return nil }

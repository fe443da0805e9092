package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"roller/internal/report"
)

// FileSink persists the final RunReport as indented JSON. Intermediate
// events are ignored; the file is written once, on run.finished, so a
// crashed run never leaves a half-written report behind.
type FileSink struct {
	path string

	mu      sync.Mutex
	report  *report.RunReport
	written bool
}

func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file sink path must not be empty")
	}
	return &FileSink{path: path}, nil
}

func (s *FileSink) Write(ev Event) error {
	if ev.Type != EventRunFinished || ev.Report == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = ev.Report
	return s.flushLocked()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written || s.report == nil {
		return nil
	}
	return s.flushLocked()
}

func (s *FileSink) flushLocked() error {
	data, err := json.MarshalIndent(s.report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing run report: %w", err)
	}
	s.written = true
	return nil
}

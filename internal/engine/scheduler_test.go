package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"roller/internal/report"
)

func descriptors(n int) []RepositoryDescriptor {
	descs := make([]RepositoryDescriptor, n)
	for i := range descs {
		descs[i] = RepositoryDescriptor{
			Name: fmt.Sprintf("repo-%d", i),
			URL:  fmt.Sprintf("https://example.com/org/repo-%d.git", i),
		}
	}
	return descs
}

func TestNewScheduler_Validation(t *testing.T) {
	run := func(context.Context, int, RepositoryDescriptor) report.RepositoryOutcome {
		return report.RepositoryOutcome{}
	}
	if _, err := NewScheduler(0, run); err == nil {
		t.Error("expected error for zero concurrency")
	}
	if _, err := NewScheduler(-3, run); err == nil {
		t.Error("expected error for negative concurrency")
	}
	if _, err := NewScheduler(2, nil); err == nil {
		t.Error("expected error for nil run func")
	}
	if _, err := NewScheduler(2, run); err != nil {
		t.Errorf("valid scheduler rejected: %v", err)
	}
}

func TestScheduler_NeverExceedsConcurrencyBound(t *testing.T) {
	const workers = 3
	const repos = 20

	var mu sync.Mutex
	active, peak := 0, 0

	run := func(_ context.Context, _ int, desc RepositoryDescriptor) report.RepositoryOutcome {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return report.RepositoryOutcome{Repo: desc.Name, Status: report.StatusSucceeded}
	}

	s, err := NewScheduler(workers, run)
	if err != nil {
		t.Fatal(err)
	}
	outcomes := s.Execute(context.Background(), descriptors(repos), false)

	if len(outcomes) != repos {
		t.Fatalf("outcomes = %d, want %d", len(outcomes), repos)
	}
	if peak > workers {
		t.Errorf("observed %d concurrent pipelines, bound is %d", peak, workers)
	}
	if peak == 0 {
		t.Error("no pipeline ever ran")
	}
}

func TestScheduler_OutcomesFollowDescriptorOrder(t *testing.T) {
	// Later descriptors finish first; the report order must not care.
	run := func(_ context.Context, i int, desc RepositoryDescriptor) report.RepositoryOutcome {
		time.Sleep(time.Duration(10-i) * time.Millisecond)
		return report.RepositoryOutcome{Repo: desc.Name, Status: report.StatusSucceeded}
	}

	descs := descriptors(8)
	s, err := NewScheduler(8, run)
	if err != nil {
		t.Fatal(err)
	}
	outcomes := s.Execute(context.Background(), descs, false)

	for i, o := range outcomes {
		if o.Repo != descs[i].Name {
			t.Errorf("outcomes[%d] = %s, want %s", i, o.Repo, descs[i].Name)
		}
	}
}

func TestScheduler_ExactlyOneOutcomePerDescriptor(t *testing.T) {
	var mu sync.Mutex
	runs := make(map[string]int)

	run := func(_ context.Context, _ int, desc RepositoryDescriptor) report.RepositoryOutcome {
		mu.Lock()
		runs[desc.Name]++
		mu.Unlock()
		return report.RepositoryOutcome{Repo: desc.Name, Status: report.StatusSucceeded}
	}

	descs := descriptors(12)
	s, err := NewScheduler(4, run)
	if err != nil {
		t.Fatal(err)
	}
	outcomes := s.Execute(context.Background(), descs, false)

	if len(outcomes) != len(descs) {
		t.Fatalf("outcomes = %d, want %d", len(outcomes), len(descs))
	}
	for _, d := range descs {
		if runs[d.Name] != 1 {
			t.Errorf("%s ran %d times, want 1", d.Name, runs[d.Name])
		}
	}
}

// With a 1-wide pool, a failure in the first repository prevents the rest
// from ever starting.
func TestScheduler_ExitOnFirstFailure_SerialPool(t *testing.T) {
	var mu sync.Mutex
	started := make(map[string]bool)

	run := func(_ context.Context, i int, desc RepositoryDescriptor) report.RepositoryOutcome {
		mu.Lock()
		started[desc.Name] = true
		mu.Unlock()
		status := report.StatusSucceeded
		if i == 0 {
			status = report.StatusFailed
		}
		return report.RepositoryOutcome{Repo: desc.Name, Status: status}
	}

	descs := descriptors(3)
	s, err := NewScheduler(1, run)
	if err != nil {
		t.Fatal(err)
	}
	outcomes := s.Execute(context.Background(), descs, true)

	if outcomes[0].Status != report.StatusFailed {
		t.Fatalf("outcomes[0] = %s, want failed", outcomes[0].Status)
	}
	for i := 1; i < 3; i++ {
		if outcomes[i].Status != report.StatusNotAttempted {
			t.Errorf("outcomes[%d] = %s, want not-attempted", i, outcomes[i].Status)
		}
		if started[descs[i].Name] {
			t.Errorf("%s started despite exit-on-first-failure", descs[i].Name)
		}
	}
}

// With a pool at least as wide as the repo set, everything is dispatched
// before the failure is observed, so already running pipelines finish.
func TestScheduler_ExitOnFirstFailure_WidePool(t *testing.T) {
	var startedAll sync.WaitGroup
	startedAll.Add(3)

	run := func(_ context.Context, i int, desc RepositoryDescriptor) report.RepositoryOutcome {
		startedAll.Done()
		// Fail only after every pipeline is known to be in flight.
		startedAll.Wait()
		status := report.StatusSucceeded
		if i == 0 {
			status = report.StatusFailed
		}
		return report.RepositoryOutcome{Repo: desc.Name, Status: status}
	}

	s, err := NewScheduler(3, run)
	if err != nil {
		t.Fatal(err)
	}
	outcomes := s.Execute(context.Background(), descriptors(3), true)

	if outcomes[0].Status != report.StatusFailed {
		t.Fatalf("outcomes[0] = %s, want failed", outcomes[0].Status)
	}
	for i := 1; i < 3; i++ {
		if outcomes[i].Status != report.StatusSucceeded {
			t.Errorf("outcomes[%d] = %s, want succeeded (already dispatched)", i, outcomes[i].Status)
		}
	}
}

func TestScheduler_TestFailureTriggersCancellation(t *testing.T) {
	run := func(_ context.Context, i int, desc RepositoryDescriptor) report.RepositoryOutcome {
		status := report.StatusSucceeded
		if i == 0 {
			status = report.StatusTestFailed
		}
		return report.RepositoryOutcome{Repo: desc.Name, Status: status}
	}

	s, err := NewScheduler(1, run)
	if err != nil {
		t.Fatal(err)
	}
	outcomes := s.Execute(context.Background(), descriptors(2), true)

	if outcomes[1].Status != report.StatusNotAttempted {
		t.Errorf("test failure must stop dispatch, got %s", outcomes[1].Status)
	}
}

func TestScheduler_CancelledContext(t *testing.T) {
	run := func(_ context.Context, _ int, desc RepositoryDescriptor) report.RepositoryOutcome {
		t.Error("pipeline ran despite cancelled context")
		return report.RepositoryOutcome{Repo: desc.Name}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewScheduler(2, run)
	if err != nil {
		t.Fatal(err)
	}
	outcomes := s.Execute(ctx, descriptors(4), false)

	for i, o := range outcomes {
		if o.Status != report.StatusNotAttempted {
			t.Errorf("outcomes[%d] = %s, want not-attempted", i, o.Status)
		}
	}
}

func TestScheduler_EmptyDescriptorList(t *testing.T) {
	s, err := NewScheduler(2, func(context.Context, int, RepositoryDescriptor) report.RepositoryOutcome {
		return report.RepositoryOutcome{}
	})
	if err != nil {
		t.Fatal(err)
	}
	outcomes := s.Execute(context.Background(), nil, true)
	if len(outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0", len(outcomes))
	}
}

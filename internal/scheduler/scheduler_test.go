package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerRunsJob(t *testing.T) {
	s := New(nil, nil)
	var calls atomic.Int32
	if err := s.Add("scrape", "*/10 * * * *", func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Trigger(context.Background(), "scrape"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if s.Running("scrape") {
		t.Error("expected guard released after run")
	}
}

func TestTriggerReturnsJobError(t *testing.T) {
	s := New(nil, nil)
	boom := errors.New("boom")
	s.Add("cleanup", "", func(context.Context) error { return boom })

	if err := s.Trigger(context.Background(), "cleanup"); !errors.Is(err, boom) {
		t.Errorf("expected job error, got %v", err)
	}
	if s.Running("cleanup") {
		t.Error("expected guard released after failure")
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	s := New(nil, nil)
	if err := s.Trigger(context.Background(), "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(nil, nil)
	if err := s.Add("bad", "not a cron", func(context.Context) error { return nil }); err == nil {
		t.Error("expected invalid spec to fail")
	}
	if err := s.Add("dup", "", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Add("dup", "", func(context.Context) error { return nil }); err == nil {
		t.Error("expected duplicate name to fail")
	}
}

func TestGuardSkipsOverlapButNotOtherJobs(t *testing.T) {
	s := New(nil, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	s.Add("scrape", "", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	var digests atomic.Int32
	s.Add("daily_digest", "", func(context.Context) error {
		digests.Add(1)
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background(), "scrape") }()
	<-started

	if err := s.Trigger(context.Background(), "scrape"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("expected overlapping run to be refused, got %v", err)
	}
	if err := s.Trigger(context.Background(), "daily_digest"); err != nil {
		t.Errorf("expected other job to run, got %v", err)
	}
	if digests.Load() != 1 {
		t.Errorf("expected 1 digest run, got %d", digests.Load())
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("unexpected error from first run: %v", err)
	}
	if s.Running("scrape") {
		t.Error("expected guard released after run")
	}
}

func TestFireSkipsWhileRunning(t *testing.T) {
	s := New(nil, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	s.Add("compare", "", func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})

	s.acquire("compare")
	s.fire("compare")
	if calls.Load() != 0 {
		t.Errorf("expected firing skipped while in flight, got %d calls", calls.Load())
	}
	s.release("compare")
	close(release)
	s.fire("compare")
	if calls.Load() != 1 {
		t.Errorf("expected firing after release, got %d calls", calls.Load())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(time.UTC, nil)
	var finished atomic.Bool
	started := make(chan struct{}, 1)
	s.Add("tick", "@every 1s", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("expected job to fire")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected Run to return after cancel")
	}
	if !finished.Load() {
		t.Error("expected Run to wait for the in-flight job")
	}
}

func TestJobsAndNext(t *testing.T) {
	s := New(nil, nil)
	s.Add("scrape", "*/10 * * * *", func(context.Context) error { return nil })
	s.Add("manual", "", func(context.Context) error { return nil })

	jobs := s.Jobs()
	if len(jobs) != 2 || jobs[0] != "manual" || jobs[1] != "scrape" {
		t.Errorf("unexpected jobs %v", jobs)
	}
	if !s.Next("manual").IsZero() {
		t.Error("expected no next firing for manual job")
	}
}

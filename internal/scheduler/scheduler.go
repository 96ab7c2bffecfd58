// Package scheduler fires named jobs on cron schedules. Each job has an
// in-flight guard shared by scheduled firings and manual triggers, so a
// job never overlaps itself while different jobs run independently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/RivalWatch/internal/logging"
)

var (
	// ErrUnknownJob is returned when triggering a name that was never added.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when the job is already in flight.
	ErrJobRunning = errors.New("job already running")
)

// JobFunc is the work performed by a job.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   JobFunc
	id   cron.EntryID
}

// Scheduler runs jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	running map[string]bool
	base    context.Context
}

// New creates a Scheduler evaluating schedules in loc (UTC if nil).
func New(loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger = logging.Or(logger)
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger:  logger,
		jobs:    make(map[string]*job),
		running: make(map[string]bool),
		base:    context.Background(),
	}
}

// Add registers a job under a standard five-field cron spec. An empty
// spec registers the job for manual triggers only.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already added", name)
	}
	j := &job{name: name, spec: spec, fn: fn}
	if spec != "" {
		id, err := s.cron.AddJob(spec, cron.FuncJob(func() { s.fire(name) }))
		if err != nil {
			return fmt.Errorf("scheduling %s (%q): %w", name, spec, err)
		}
		j.id = id
	}
	s.jobs[name] = j
	return nil
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns the next scheduled firing of a job, or the zero time.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok || j.spec == "" {
		return time.Time{}
	}
	return s.cron.Entry(j.id).Next
}

// Run starts the schedules and blocks until ctx is cancelled, then waits
// for in-flight scheduled jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.Jobs()))
	for _, name := range s.Jobs() {
		if next := s.Next(name); !next.IsZero() {
			s.logger.Debug("job scheduled", "job", name, "next", next)
		}
	}

	<-ctx.Done()
	s.logger.Info("scheduler stopping, waiting for running jobs")
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// Trigger runs a job now and returns its error. It fails with
// ErrJobRunning if the job is already in flight.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j, "manual")
}

func (s *Scheduler) fire(name string) {
	s.mu.Lock()
	j := s.jobs[name]
	ctx := s.base
	s.mu.Unlock()

	if err := s.execute(ctx, j, "cron"); errors.Is(err, ErrJobRunning) {
		s.logger.Warn("skipping job, previous run still in flight", "job", name)
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job, trigger string) error {
	if !s.acquire(j.name) {
		return fmt.Errorf("%w: %s", ErrJobRunning, j.name)
	}
	defer s.release(j.name)

	runID := uuid.NewString()
	logger := s.logger.With("job", j.name, "run_id", runID, "trigger", trigger)
	logger.Info("job started")
	start := time.Now()

	err := j.fn(ctx)
	if err != nil {
		logger.Error("job failed", "duration", time.Since(start), "error", err)
		return err
	}
	logger.Info("job finished", "duration", time.Since(start))
	return nil
}

func (s *Scheduler) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
}

// Running reports whether a job is in flight.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[name]
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

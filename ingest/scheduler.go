/*
scheduler.go - Lifecycle controller for the ingestion loop

PURPOSE:
  Owns the long-lived background task: an optional startup pass, then an
  interval loop that runs the pipeline, plus the manual trigger exposed to
  the control API. All scheduler state (enabled flag, run counters, last
  result) lives in this struct behind one mutex - no globals.

DESIGN:
  - Pause is not stop: when disabled, the loop keeps waking on schedule
    and skips the run, so re-enabling needs no restart.
  - One pass at a time: the loop and the manual trigger are serialized by
    a non-blocking boolean guard. A trigger during an active pass is
    rejected immediately, never queued.
  - Failures cool down: after a failed pass the loop waits a longer fixed
    cooldown before resuming the schedule, instead of busy-looping on a
    broken feed or key.
  - Shutdown is prompt but clean: Stop interrupts any sleep right away,
    lets an in-flight pass finish its writes, then returns. Passes run on
    context.Background() for exactly that reason.

USAGE:
  s := ingest.NewScheduler(pipeline, store, opts, logger)
  s.Start()
  defer s.Stop()

SEE ALSO:
  - pipeline.go: what one pass does
  - retry.go: the independent reconciliation pass
*/
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run trigger labels, recorded in the run history.
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerManual   = "manual"
)

// SchedulerOptions configure the loop. Zero values fall back to defaults.
type SchedulerOptions struct {
	// Interval between scheduled passes. Default 1h.
	Interval time.Duration

	// StartupDelay before the optional first pass, giving collaborating
	// services time to come up. Default 5s.
	StartupDelay time.Duration

	// Cooldown after a failed pass before the schedule resumes.
	// Default 5m.
	Cooldown time.Duration

	// RunOnStartup performs one pass right after Start (after
	// StartupDelay) instead of waiting a full interval.
	RunOnStartup bool

	// Enabled is the initial pause-switch position. Default true.
	Enabled *bool
}

// SchedulerStatus is a read-only snapshot of scheduler state.
type SchedulerStatus struct {
	IsRunning       bool
	Enabled         bool
	LastRun         time.Time // zero until the first pass completes
	LastResult      *RunResult
	TotalRuns       int
	IntervalSeconds int
	RunOnStartup    bool
}

// Scheduler drives the ingestion pipeline.
type Scheduler struct {
	pipeline *Pipeline
	store    Store
	logger   *slog.Logger

	interval     time.Duration
	startupDelay time.Duration
	cooldown     time.Duration
	runOnStart   bool

	mu         sync.Mutex
	enabled    bool
	running    bool // a pass (scheduled or manual) is in flight
	started    bool
	stopped    bool
	lastRun    time.Time
	lastResult *RunResult
	totalRuns  int

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(pipeline *Pipeline, store Store, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.StartupDelay <= 0 {
		opts.StartupDelay = 5 * time.Second
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	enabled := true
	if opts.Enabled != nil {
		enabled = *opts.Enabled
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pipeline:     pipeline,
		store:        store,
		logger:       logger,
		interval:     opts.Interval,
		startupDelay: opts.StartupDelay,
		cooldown:     opts.Cooldown,
		runOnStart:   opts.RunOnStartup,
		enabled:      enabled,
		stop:         make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started",
		"interval", s.interval.String(),
		"run_on_startup", s.runOnStart,
		"enabled", s.Enabled())
}

// Stop interrupts any sleep promptly, waits for an in-flight pass to
// finish, then returns. No new pass starts afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	if s.runOnStart {
		if !s.sleep(s.startupDelay) {
			return
		}
		if s.Enabled() {
			s.runScheduled(TriggerStartup)
		}
	}

	for {
		if !s.sleep(s.interval) {
			return
		}
		if !s.Enabled() {
			s.logger.Debug("scheduler disabled, skipping pass")
			continue
		}
		if failed := s.runScheduled(TriggerInterval); failed {
			if !s.sleep(s.cooldown) {
				return
			}
		}
	}
}

// sleep waits d, or less if Stop arrives. Returns false when stopping.
func (s *Scheduler) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stop:
		return false
	case <-t.C:
		return true
	}
}

// runScheduled executes one guarded pass from the loop. Returns true when
// the pass ran and failed (the loop then applies the cooldown).
func (s *Scheduler) runScheduled(trigger string) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	if !s.beginPass() {
		// A manual trigger is mid-flight; this wake is simply skipped.
		s.logger.Warn("pass already in flight, skipping scheduled pass")
		return false
	}
	res := s.executePass(trigger)
	return res.Status == RunFailed
}

// TriggerRun starts one out-of-band pass regardless of the enabled flag.
// It returns immediately: true if the pass was started, false if another
// pass is in flight or the scheduler is shutting down.
func (s *Scheduler) TriggerRun() bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	if !s.beginPass() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executePass(TriggerManual)
	}()
	return true
}

// beginPass claims the single-pass guard without blocking.
func (s *Scheduler) beginPass() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// executePass runs the pipeline and records the outcome. The caller must
// have claimed the guard; executePass releases it.
func (s *Scheduler) executePass(trigger string) RunResult {
	started := time.Now().UTC()
	s.logger.Info("ingestion pass starting", "trigger", trigger)

	rec := RunRecord{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    "running",
		StartedAt: started,
	}
	// History writes are best-effort; a full history table must never
	// block ingestion.
	if err := s.store.SaveRun(context.Background(), rec); err != nil {
		s.logger.Warn("could not save run record", "error", err)
	}

	res := s.pipeline.RunOnce(context.Background())

	completed := time.Now().UTC()
	rec.Status = string(res.Status)
	rec.CompletedAt = completed
	rec.ItemsSeen = res.ItemsSeen
	rec.ItemsSaved = res.ItemsSaved
	rec.DuplicateSkips = res.DuplicateSkips
	rec.Unenriched = res.Unenriched
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := s.store.SaveRun(context.Background(), rec); err != nil {
		s.logger.Warn("could not update run record", "error", err)
	}

	s.mu.Lock()
	s.running = false
	s.lastRun = completed
	s.lastResult = &res
	s.totalRuns++
	s.mu.Unlock()

	return res
}

// SetEnabled flips the pause switch and returns the new value. The loop
// keeps waking either way and honors the flag at its next wake.
func (s *Scheduler) SetEnabled(v bool) bool {
	s.mu.Lock()
	s.enabled = v
	s.mu.Unlock()
	s.logger.Info("scheduler enabled flag changed", "enabled", v)
	return v
}

// Enabled reports the current pause-switch position.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Status returns a snapshot for the control surface.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *RunResult
	if s.lastResult != nil {
		cp := *s.lastResult
		last = &cp
	}
	return SchedulerStatus{
		IsRunning:       s.running,
		Enabled:         s.enabled,
		LastRun:         s.lastRun,
		LastResult:      last,
		TotalRuns:       s.totalRuns,
		IntervalSeconds: int(s.interval / time.Second),
		RunOnStartup:    s.runOnStart,
	}
}

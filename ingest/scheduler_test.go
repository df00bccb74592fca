package ingest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/policy-engine/extract"
	"github.com/budgetlens/policy-engine/ingest"
	"github.com/budgetlens/policy-engine/store/memory"
)

func boolPtr(v bool) *bool { return &v }

func waitEntered(t *testing.T, bx *blockingExtractor) {
	t.Helper()
	select {
	case <-bx.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("extractor was never reached")
	}
}

func TestSchedulerRunsOnStartupAndInterval(t *testing.T) {
	st := memory.New()
	src := &fakeSource{cands: candidates(1)}
	p := ingest.NewPipeline(st, src, &fakeExtractor{}, testLogger())
	s := ingest.NewScheduler(p, st, ingest.SchedulerOptions{
		Interval:     40 * time.Millisecond,
		StartupDelay: 5 * time.Millisecond,
		RunOnStartup: true,
	}, testLogger())

	s.Start()
	defer s.Stop()

	// The startup pass plus at least one interval pass must land well
	// within a couple of intervals.
	require.Eventually(t, func() bool { return src.callCount() >= 2 },
		2*time.Second, 5*time.Millisecond)

	s.Stop()

	runs := st.Runs()
	require.GreaterOrEqual(t, len(runs), 2)
	assert.Equal(t, ingest.TriggerStartup, runs[0].Trigger)
	assert.Equal(t, ingest.TriggerInterval, runs[1].Trigger)
	for _, run := range runs {
		assert.Equal(t, string(ingest.RunCompleted), run.Status)
		assert.False(t, run.CompletedAt.IsZero())
	}

	status := s.Status()
	assert.False(t, status.IsRunning)
	assert.GreaterOrEqual(t, status.TotalRuns, 2)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, ingest.RunCompleted, status.LastResult.Status)
	assert.False(t, status.LastRun.IsZero())
}

func TestSchedulerDisabledSkipsScheduledPasses(t *testing.T) {
	st := memory.New()
	src := &fakeSource{cands: candidates(1)}
	p := ingest.NewPipeline(st, src, &fakeExtractor{}, testLogger())
	s := ingest.NewScheduler(p, st, ingest.SchedulerOptions{
		Interval:     25 * time.Millisecond,
		StartupDelay: 5 * time.Millisecond,
		RunOnStartup: true,
		Enabled:      boolPtr(false),
	}, testLogger())

	s.Start()
	defer s.Stop()

	// GIVEN a disabled scheduler left alone for several wake-ups
	time.Sleep(150 * time.Millisecond)

	// THEN the loop woke but never ran a pass
	assert.Equal(t, 0, src.callCount())
	assert.False(t, s.Status().Enabled)

	// WHEN re-enabled, the very same loop picks the schedule back up
	s.SetEnabled(true)
	require.Eventually(t, func() bool { return src.callCount() >= 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestSchedulerDisableMidLoopStopsRuns(t *testing.T) {
	st := memory.New()
	src := &fakeSource{cands: candidates(1)}
	p := ingest.NewPipeline(st, src, &fakeExtractor{}, testLogger())
	s := ingest.NewScheduler(p, st, ingest.SchedulerOptions{
		Interval: 25 * time.Millisecond,
	}, testLogger())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return src.callCount() >= 1 },
		2*time.Second, 5*time.Millisecond)

	s.SetEnabled(false)
	// Let a wake that already passed the enabled check drain out.
	time.Sleep(50 * time.Millisecond)

	before := src.callCount()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, before, src.callCount(), "disabled loop must not run passes")

	s.SetEnabled(true)
	require.Eventually(t, func() bool { return src.callCount() > before },
		2*time.Second, 5*time.Millisecond)
}

func TestTriggerRunRejectedWhileRunning(t *testing.T) {
	st := memory.New()
	src := &fakeSource{cands: candidates(1)}
	bx := newBlockingExtractor()
	p := ingest.NewPipeline(st, src, bx, testLogger())
	s := ingest.NewScheduler(p, st, ingest.SchedulerOptions{Interval: time.Hour}, testLogger())

	s.Start()
	defer s.Stop()

	// GIVEN a manual pass parked inside the extractor
	require.True(t, s.TriggerRun())
	waitEntered(t, bx)

	// THEN a second trigger is rejected, never queued
	assert.False(t, s.TriggerRun())
	assert.True(t, s.Status().IsRunning)

	// AND the run history already shows the in-flight pass
	runs := st.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "running", runs[0].Status)
	assert.Equal(t, ingest.TriggerManual, runs[0].Trigger)
	assert.True(t, runs[0].CompletedAt.IsZero())

	// WHEN the pass finishes
	close(bx.release)
	require.Eventually(t, func() bool { return !s.Status().IsRunning },
		2*time.Second, 5*time.Millisecond)

	runs = st.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, string(ingest.RunCompleted), runs[0].Status)
	assert.Equal(t, 1, runs[0].ItemsSaved)
	assert.False(t, runs[0].CompletedAt.IsZero())

	// THEN the guard is free again
	assert.True(t, s.TriggerRun())
	require.Eventually(t, func() bool { return s.Status().TotalRuns == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestTriggerRunWorksWhileDisabled(t *testing.T) {
	st := memory.New()
	src := &fakeSource{cands: candidates(2)}
	p := ingest.NewPipeline(st, src, &fakeExtractor{}, testLogger())
	s := ingest.NewScheduler(p, st, ingest.SchedulerOptions{
		Interval: time.Hour,
		Enabled:  boolPtr(false),
	}, testLogger())

	s.Start()
	defer s.Stop()

	require.True(t, s.TriggerRun())
	require.Eventually(t, func() bool { return s.Status().TotalRuns == 1 },
		2*time.Second, 5*time.Millisecond)

	assert.Len(t, st.Records(), 2)
	runs := st.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, ingest.TriggerManual, runs[0].Trigger)
}

func TestStopWaitsForInFlightPass(t *testing.T) {
	st := memory.New()
	src := &fakeSource{cands: candidates(1)}
	bx := newBlockingExtractor()
	p := ingest.NewPipeline(st, src, bx, testLogger())
	s := ingest.NewScheduler(p, st, ingest.SchedulerOptions{Interval: time.Hour}, testLogger())

	s.Start()
	require.True(t, s.TriggerRun())
	waitEntered(t, bx)

	go func() {
		time.Sleep(60 * time.Millisecond)
		close(bx.release)
	}()

	begin := time.Now()
	s.Stop()
	elapsed := time.Since(begin)

	// Stop must have waited for the pass, and the pass's writes must
	// have landed.
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	recs := st.Records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Analyzed)

	// No new pass after shutdown.
	assert.False(t, s.TriggerRun())
}

func TestStopInterruptsSleepPromptly(t *testing.T) {
	st := memory.New()
	p := ingest.NewPipeline(st, &fakeSource{}, &fakeExtractor{}, testLogger())
	s := ingest.NewScheduler(p, st, ingest.SchedulerOptions{Interval: time.Hour}, testLogger())

	s.Start()
	time.Sleep(10 * time.Millisecond) // loop is now asleep for an hour

	begin := time.Now()
	s.Stop()
	assert.Less(t, time.Since(begin), time.Second)
}

func TestSchedulerStatusBeforeFirstRun(t *testing.T) {
	st := memory.New()
	p := ingest.NewPipeline(st, &fakeSource{}, &fakeExtractor{}, testLogger())
	s := ingest.NewScheduler(p, st, ingest.SchedulerOptions{Interval: 90 * time.Second}, testLogger())

	status := s.Status()
	assert.False(t, status.IsRunning)
	assert.True(t, status.Enabled)
	assert.Equal(t, 0, status.TotalRuns)
	assert.True(t, status.LastRun.IsZero())
	assert.Nil(t, status.LastResult)
	assert.Equal(t, 90, status.IntervalSeconds)
}

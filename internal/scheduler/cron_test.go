package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingJob records how often it runs and how many runs overlap
type countingJob struct {
	calls      atomic.Int32
	inFlight   atomic.Int32
	maxOverlap atomic.Int32
	delay      time.Duration
	err        error
}

func (c *countingJob) Run(ctx context.Context) error {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		cur := c.maxOverlap.Load()
		if n <= cur || c.maxOverlap.CompareAndSwap(cur, n) {
			break
		}
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.err
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRegister_Validation(t *testing.T) {
	s := NewCronScheduler()
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name string
		spec JobSpec
	}{
		{"empty id", JobSpec{Cron: "@daily", Run: noop}},
		{"nil run", JobSpec{ID: "a", Cron: "@daily"}},
		{"no schedule", JobSpec{ID: "a", Run: noop}},
		{"two schedules", JobSpec{ID: "a", Cron: "@daily", Interval: time.Hour, Run: noop}},
		{"bad cron", JobSpec{ID: "a", Cron: "61 * * * *", Run: noop}},
		{"negative interval", JobSpec{ID: "a", Interval: -time.Second, Run: noop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Register(tt.spec); err == nil {
				t.Error("expected error")
			}
		})
	}

	if len(s.Status().Jobs) != 0 {
		t.Errorf("invalid specs must not be registered: %+v", s.Status().Jobs)
	}
}

func TestCronScheduler_IntervalRuns(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{}
	if err := s.Register(JobSpec{ID: "tick", Name: "tick", Interval: 20 * time.Millisecond, Run: job.Run}); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return job.calls.Load() >= 3 })

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	status := s.Status()
	if status.Running {
		t.Error("scheduler should not be running after Stop")
	}
	js, ok := status.Job("tick")
	if !ok {
		t.Fatal("job missing from status")
	}
	if js.SuccessfulRuns < 3 || js.TotalRuns != js.SuccessfulRuns {
		t.Errorf("unexpected stats: %+v", js)
	}
}

func TestCronScheduler_NoSelfOverlap(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{delay: 120 * time.Millisecond}
	if err := s.Register(JobSpec{ID: "slow", Interval: 10 * time.Millisecond, Run: job.Run}); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool {
		js, _ := s.Status().Job("slow")
		return js.SkippedRuns >= 3
	})
	s.Stop()

	if got := job.maxOverlap.Load(); got != 1 {
		t.Errorf("job overlapped itself: max %d concurrent runs", got)
	}
}

func TestCronScheduler_ReplaceWhileRunning(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{delay: 150 * time.Millisecond}
	spec := JobSpec{ID: "slow", Interval: 10 * time.Millisecond, Run: job.Run}
	if err := s.Register(spec); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return job.inFlight.Load() == 1 })

	// Re-registering mid-run keeps the job marked active
	spec.Name = "slow, reconfigured"
	if err := s.Register(spec); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		js, _ := s.Status().Job("slow")
		return js.SkippedRuns >= 2
	})

	if got := job.maxOverlap.Load(); got != 1 {
		t.Errorf("replaced job overlapped its previous run: max %d concurrent runs", got)
	}
}

func TestCronScheduler_RunAtRunsOnce(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	// Registering after Start must wake the loop
	if err := s.Register(JobSpec{ID: "once", RunAt: time.Now().Add(30 * time.Millisecond), Run: job.Run}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool { return job.calls.Load() == 1 })
	waitFor(t, 2*time.Second, func() bool {
		_, ok := s.Status().Job("once")
		return !ok
	})

	time.Sleep(60 * time.Millisecond)
	if got := job.calls.Load(); got != 1 {
		t.Errorf("one-shot job ran %d times", got)
	}
}

func TestCronScheduler_RunAtInThePast(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{}
	if err := s.Register(JobSpec{ID: "late", RunAt: time.Now().Add(-time.Hour), Run: job.Run}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return job.calls.Load() == 1 })
}

func TestCronScheduler_FailuresRecorded(t *testing.T) {
	s := NewCronScheduler()
	var panicked atomic.Bool
	if err := s.Register(JobSpec{ID: "fail", Interval: 15 * time.Millisecond, Run: (&countingJob{err: errors.New("store unavailable")}).Run}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(JobSpec{ID: "panic", RunAt: time.Now(), Run: func(context.Context) error {
		panicked.Store(true)
		panic("boom")
	}}); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool {
		js, _ := s.Status().Job("fail")
		return js.FailedRuns >= 2 && panicked.Load()
	})
	s.Stop()

	js, _ := s.Status().Job("fail")
	if js.LastError != "store unavailable" {
		t.Errorf("LastError = %q", js.LastError)
	}
}

func TestCronScheduler_Remove(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{}
	if err := s.Register(JobSpec{ID: "gone", Interval: 10 * time.Millisecond, Run: job.Run}); err != nil {
		t.Fatal(err)
	}
	if !s.Remove("gone") {
		t.Fatal("Remove() should report the job existed")
	}
	if s.Remove("gone") {
		t.Error("second Remove() should report false")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if job.calls.Load() != 0 {
		t.Errorf("removed job ran %d times", job.calls.Load())
	}
}

func TestCronScheduler_StopCancelsAndWaits(t *testing.T) {
	s := NewCronScheduler()
	job := &countingJob{delay: time.Hour}
	if err := s.Register(JobSpec{ID: "long", RunAt: time.Now(), Run: job.Run}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return job.inFlight.Load() == 1 })

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not cancel the in-flight run")
	}
	if job.inFlight.Load() != 0 {
		t.Error("run still in flight after Stop()")
	}
}

func TestCronScheduler_Lifecycle(t *testing.T) {
	s := NewCronScheduler()

	if err := s.Stop(); err == nil {
		t.Error("Stop() before Start() should fail")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("Start() after Stop() should fail")
	}
}

func TestCronScheduler_ContextCancellation(t *testing.T) {
	s := NewCronScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	waitFor(t, 2*time.Second, func() bool { return !s.Status().Running })
}

func TestCronScheduler_ConcurrentRegister(t *testing.T) {
	s := NewCronScheduler()
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Register(JobSpec{ID: "shared", Cron: "@hourly", Run: func(context.Context) error { return nil }})
			_ = s.Status()
		}()
	}
	wg.Wait()

	if len(s.Status().Jobs) != 1 {
		t.Errorf("expected a single job, got %d", len(s.Status().Jobs))
	}
}

func TestParseCron(t *testing.T) {
	sched, err := ParseCron("30 2 * * *")
	if err != nil {
		t.Fatalf("ParseCron() error = %v", err)
	}
	from := time.Date(2024, 1, 1, 3, 0, 0, 0, time.Local)
	want := time.Date(2024, 1, 2, 2, 30, 0, 0, time.Local)
	if got := sched.Next(from); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}

	for _, bad := range []string{"", "* * *", "0 0 0 * * *", "nonsense"} {
		if _, err := ParseCron(bad); err == nil {
			t.Errorf("ParseCron(%q) should fail", bad)
		}
	}
}

func TestSchedules(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	every, err := Every(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if got := every.Next(base); !got.Equal(base.Add(time.Minute)) {
		t.Errorf("Every.Next() = %v", got)
	}
	if _, err := Every(0); err == nil {
		t.Error("Every(0) should fail")
	}

	once := At(base.Add(time.Hour))
	if got := once.Next(base); !got.Equal(base.Add(time.Hour)) {
		t.Errorf("At.Next() before = %v", got)
	}
	if got := once.Next(base.Add(time.Hour)); !got.IsZero() {
		t.Errorf("At.Next() after = %v, want zero", got)
	}
}

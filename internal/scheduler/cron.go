package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ning0612/revlink/internal/logger"
)

// CronScheduler runs named jobs on cron, interval or one-shot schedules.
// A job never overlaps itself: a tick that arrives while the previous run is
// still active is skipped and counted. Different jobs run concurrently.
type CronScheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	running bool
	stopped bool // Track if stopped to prevent restart

	stopOnce    sync.Once // Ensure Stop() is idempotent
	closeOnce   sync.Once // Ensure stoppedChan is closed exactly once
	stopChan    chan struct{}
	stoppedChan chan struct{}
	wake        chan struct{}

	cancelRuns context.CancelFunc
	runs       sync.WaitGroup

	now func() time.Time
}

type job struct {
	spec     JobSpec
	schedule Schedule
	once     bool
	next     time.Time
	active   bool

	stats struct {
		lastRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		skippedRuns    int
		lastError      string
	}
}

var _ Scheduler = (*CronScheduler)(nil)

// NewCronScheduler creates an empty scheduler
func NewCronScheduler() *CronScheduler {
	return &CronScheduler{
		jobs:        make(map[string]*job),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
		wake:        make(chan struct{}, 1),
		now:         time.Now,
	}
}

// Register adds a job or replaces the job with the same ID.
// Replacing keeps the run state, so a replaced job still never overlaps
// a run of its previous definition.
func (s *CronScheduler) Register(spec JobSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("job id cannot be empty")
	}
	if spec.Run == nil {
		return fmt.Errorf("job %s: run function cannot be nil", spec.ID)
	}
	sched, once, err := spec.schedule()
	if err != nil {
		return err
	}

	s.mu.Lock()
	now := s.now()
	next := sched.Next(now)
	if once {
		next = spec.RunAt
		if next.Before(now) {
			next = now
		}
	}

	j, ok := s.jobs[spec.ID]
	if !ok {
		j = &job{}
		s.jobs[spec.ID] = j
	}
	j.spec = spec
	j.schedule = sched
	j.once = once
	j.next = next
	s.mu.Unlock()

	logger.Debug("job registered", "job", spec.ID, "name", spec.Name, "next_run", next)
	s.poke()
	return nil
}

// Remove unregisters a job. A run already in progress finishes normally.
func (s *CronScheduler) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()

	if ok {
		logger.Debug("job removed", "job", id)
		s.poke()
	}
	return ok
}

// poke wakes the loop so it recomputes the next activation
func (s *CronScheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start begins the scheduling loop
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRuns = cancel
	s.running = true

	go s.run(runCtx)
	return nil
}

// run is the main scheduling loop
func (s *CronScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	for {
		s.mu.Lock()
		next := s.earliest()
		s.mu.Unlock()

		var timer *time.Timer
		var fire <-chan time.Time
		if !next.IsZero() {
			timer = time.NewTimer(next.Sub(s.now()))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-s.stopChan:
			stopTimer(timer)
			return
		case <-s.wake:
			stopTimer(timer)
		case <-fire:
			s.dispatch(ctx)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// earliest must be called with s.mu held
func (s *CronScheduler) earliest() time.Time {
	var next time.Time
	for _, j := range s.jobs {
		if j.next.IsZero() {
			continue
		}
		if next.IsZero() || j.next.Before(next) {
			next = j.next
		}
	}
	return next
}

// dispatch starts every due job that is not already running
func (s *CronScheduler) dispatch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, j := range s.jobs {
		if j.next.IsZero() || j.next.After(now) {
			continue
		}
		j.next = j.schedule.Next(now)

		if j.active {
			j.stats.skippedRuns++
			logger.Warn("previous run still active, skipping tick", "job", id, "next_run", j.next)
			continue
		}

		j.active = true
		j.stats.lastRunTime = now
		j.stats.totalRuns++
		s.runs.Add(1)
		go s.execute(ctx, id, j)
	}
}

// execute runs one job and records the result
func (s *CronScheduler) execute(ctx context.Context, id string, j *job) {
	defer s.runs.Done()

	start := s.now()
	err := safeRun(ctx, j.spec.Run)

	s.mu.Lock()
	j.active = false
	if err != nil {
		j.stats.failedRuns++
		j.stats.lastError = err.Error()
	} else {
		j.stats.successfulRuns++
		j.stats.lastError = ""
	}
	if j.once && j.next.IsZero() && s.jobs[id] == j {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("job failed", "job", id, "duration", time.Since(start), "error", err)
	} else {
		logger.Debug("job finished", "job", id, "duration", time.Since(start))
	}
}

// safeRun converts a panicking job into an error
func safeRun(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Stop stops the loop, cancels in-flight runs and waits for them to return
func (s *CronScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	cancel := s.cancelRuns
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	<-s.stoppedChan
	cancel()
	s.runs.Wait()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

// Wait blocks until every in-flight run has returned
func (s *CronScheduler) Wait() {
	s.runs.Wait()
}

// Status returns the current scheduler status
func (s *CronScheduler) Status() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &Status{Running: s.running}
	for id, j := range s.jobs {
		status.Jobs = append(status.Jobs, JobStatus{
			ID:             id,
			Name:           j.spec.Name,
			Active:         j.active,
			LastRunTime:    j.stats.lastRunTime,
			NextRunTime:    j.next,
			TotalRuns:      j.stats.totalRuns,
			SuccessfulRuns: j.stats.successfulRuns,
			FailedRuns:     j.stats.failedRuns,
			SkippedRuns:    j.stats.skippedRuns,
			LastError:      j.stats.lastError,
		})
	}
	sort.Slice(status.Jobs, func(a, b int) bool { return status.Jobs[a].ID < status.Jobs[b].ID })
	return status
}

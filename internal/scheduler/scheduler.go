package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Scheduler defines the interface for job schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// JobFunc is the work a job performs
type JobFunc func(ctx context.Context) error

// JobSpec describes a job to register. Exactly one of Cron, Interval or RunAt
// must be set.
type JobSpec struct {
	// ID uniquely identifies the job; registering an existing ID replaces it
	ID string

	// Name is a human-readable label
	Name string

	// Cron is a standard 5-field expression or descriptor (@daily, @every 1h)
	Cron string

	// Interval runs the job at a fixed period
	Interval time.Duration

	// RunAt runs the job once at the given time
	RunAt time.Time

	Run JobFunc
}

// schedule builds the schedule a JobSpec describes
func (s JobSpec) schedule() (Schedule, bool, error) {
	set := 0
	if s.Cron != "" {
		set++
	}
	if s.Interval != 0 {
		set++
	}
	if !s.RunAt.IsZero() {
		set++
	}
	if set != 1 {
		return nil, false, fmt.Errorf("job %s: exactly one of cron, interval or run-at must be set", s.ID)
	}

	switch {
	case s.Cron != "":
		sched, err := ParseCron(s.Cron)
		if err != nil {
			return nil, false, fmt.Errorf("job %s: %w", s.ID, err)
		}
		return sched, false, nil
	case s.Interval != 0:
		sched, err := Every(s.Interval)
		if err != nil {
			return nil, false, fmt.Errorf("job %s: %w", s.ID, err)
		}
		return sched, false, nil
	default:
		return At(s.RunAt), true, nil
	}
}

// Status represents the current state of a scheduler
type Status struct {
	Running bool
	Jobs    []JobStatus
}

// JobStatus represents the current state of one registered job
type JobStatus struct {
	ID             string
	Name           string
	Active         bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	// SkippedRuns counts ticks dropped because the previous run was still active
	SkippedRuns int
	LastError   string
}

// Job returns the status of the job with the given id
func (s *Status) Job(id string) (JobStatus, bool) {
	for _, j := range s.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return JobStatus{}, false
}

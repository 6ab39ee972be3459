package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes activation times
type Schedule interface {
	// Next returns the next activation strictly after t, or the zero time
	// when the schedule is exhausted
	Next(t time.Time) time.Time
}

// ParseCron parses a standard 5-field cron expression or descriptor
func ParseCron(expr string) (Schedule, error) {
	sched, err := cron.ParseStandard(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// intervalSchedule fires at a fixed period
type intervalSchedule struct {
	every time.Duration
}

// Every returns a schedule firing every d
func Every(d time.Duration) (Schedule, error) {
	if d <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", d)
	}
	return intervalSchedule{every: d}, nil
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}

// onceSchedule fires a single time
type onceSchedule struct {
	at time.Time
}

// At returns a schedule firing once at t
func At(t time.Time) Schedule {
	return onceSchedule{at: t}
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

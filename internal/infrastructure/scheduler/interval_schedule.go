package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Schedule defines when a job should run.
type Schedule interface {
	// Definition returns the gocron job definition.
	Definition() gocron.JobDefinition

	// String returns a human-readable representation of the schedule.
	String() string
}

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Definition implements Schedule.
func (s *IntervalSchedule) Definition() gocron.JobDefinition {
	return gocron.DurationJob(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// CronSchedule runs a job on a standard 5-field cron expression, evaluated
// in the scheduler's timezone.
type CronSchedule struct {
	Expression string
}

// NewCronSchedule creates a new CronSchedule.
func NewCronSchedule(expr string) *CronSchedule {
	return &CronSchedule{Expression: expr}
}

// Definition implements Schedule.
func (s *CronSchedule) Definition() gocron.JobDefinition {
	return gocron.CronJob(s.Expression, false)
}

// String returns the cron expression.
func (s *CronSchedule) String() string {
	return s.Expression
}

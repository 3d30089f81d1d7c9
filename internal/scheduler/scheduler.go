// Package scheduler runs JournalPipe's periodic maintenance jobs on cron
// expressions, such as evicting idle conversation sessions.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule is how often idle sessions are swept.
const DefaultSweepSchedule = "@every 10m"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// slogLogger routes cron's logging through slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// NewScheduler creates and starts a cron scheduler accepting standard
// 5-field expressions and descriptors such as "@every 10m". Panicking jobs
// are recovered and logged.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := slogLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return id, nil
}

// Remove cancels a scheduled job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// IdleEvicter drops sessions idle for longer than ttl.
type IdleEvicter interface {
	EvictIdle(now time.Time, ttl time.Duration) int
}

// SessionSweep returns a job evicting sessions idle longer than ttl.
func SessionSweep(evicter IdleEvicter, ttl time.Duration, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}
	return func() {
		if n := evicter.EvictIdle(now(), ttl); n > 0 {
			slog.Info("Scheduler: evicted idle sessions", "count", n, "ttl", ttl)
		}
	}
}

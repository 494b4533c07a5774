// Package schedule runs jobs once a day at a local wall-clock time.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// At is a local wall-clock time of day.
type At struct {
	Hour   int
	Minute int
}

// ParseAt parses "HH:MM" in 24-hour form.
func ParseAt(s string) (At, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return At{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return At{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (a At) String() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}

// On returns the instant of a on the local calendar day containing day.
func (a At) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, a.Hour, a.Minute, 0, 0, loc)
}

// Next returns the first occurrence of at strictly after now.
func Next(now time.Time, at At, loc *time.Location) time.Time {
	cutoff := at.On(now, loc)
	if cutoff.After(now) {
		return cutoff
	}
	y, m, d := now.In(loc).Date()
	tomorrow := time.Date(y, m, d, 12, 0, 0, 0, loc).AddDate(0, 0, 1)
	return at.On(tomorrow, loc)
}

// Daily is a job run once per day. The job receives the cutoff instant it was
// scheduled for, not the time it actually started.
type Daily struct {
	Name string
	At   At
	Job  func(ctx context.Context, cutoff time.Time) error
}

type Scheduler struct {
	loc    *time.Location
	jobs   []Daily
	logger *log.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(loc *time.Location, logger *log.Logger, jobs ...Daily) *Scheduler {
	return &Scheduler{
		loc:    loc,
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// Run blocks until ctx is done. Each job gets its own goroutine; a failing or
// panicking job is logged and rescheduled for the next day.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, d := range s.jobs {
		wg.Add(1)
		go func(d Daily) {
			defer wg.Done()
			s.loop(ctx, d)
		}(d)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, d Daily) {
	from := s.now()
	for {
		next := Next(from, d.At, s.loc)
		s.logger.Debug("job scheduled", "job", d.Name, "at", next)

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
		}

		s.fire(ctx, d, next)

		// Never schedule the same cutoff twice, even if the wait returned early.
		if n := s.now(); n.After(next) {
			from = n
		} else {
			from = next
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, d Daily, cutoff time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", d.Name, "cutoff", cutoff, "panic", r)
		}
	}()

	start := s.now()
	if err := d.Job(ctx, cutoff); err != nil {
		s.logger.Error("job failed", "job", d.Name, "cutoff", cutoff, "err", err)
		return
	}
	s.logger.Info("job done", "job", d.Name, "cutoff", cutoff, "took", s.now().Sub(start))
}

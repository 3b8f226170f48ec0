package jobs

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule runs the sweep hourly.
const DefaultSweepSchedule = "@every 1h"

// scheduleParser accepts 5-field cron expressions and descriptors such as
// "@hourly" or "@every 10m".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a sweep schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("jobs: parse schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Sweeper periodically evicts expired jobs from a Registry.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper schedules reg.Sweep on schedule. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(reg *Registry, schedule string, log zerolog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithParser(scheduleParser))
	c.Schedule(sched, cron.FuncJob(func() {
		n := reg.Sweep()
		log.Debug().Int("evicted", n).Int("retained", reg.Len()).Msg("jobs.sweep")
	}))
	return &Sweeper{cron: c}, nil
}

// Start begins running the schedule in its own goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to return.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

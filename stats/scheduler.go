package stats

import (
	"fmt"

	"github.com/robfig/cron"
)

// Scheduler drives the reporter on the configured stat_interval using
// the teacher's own choice of scheduling library (robfig/cron, carried
// from rtcmlogger/go.mod but never wired into the daemon itself there)
// instead of a raw time.Ticker.
type Scheduler struct {
	cron     *cron.Cron
	reporter *Reporter
}

// NewScheduler builds (but does not start) a Scheduler that runs
// reporter.RunOnce every intervalSec seconds.
func NewScheduler(intervalSec int, reporter *Reporter) *Scheduler {
	c := cron.New()
	c.AddFunc(fmt.Sprintf("@every %ds", intervalSec), func() {
		reporter.RunOnce()
	})
	return &Scheduler{cron: c, reporter: reporter}
}

// Start begins the cron scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler; in-flight reporting cycles finish.
func (s *Scheduler) Stop() { s.cron.Stop() }

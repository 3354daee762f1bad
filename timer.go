package sgvmem

import (
	"time"

	"github.com/robfig/cron/v3"
)

// CancelFunc cancels a scheduled job if it has not already fired.
// Calling it after the job fired, or more than once, is a no-op.
type CancelFunc func()

// Timer is the deferred-work collaborator the purge worker (C7b) runs
// on (spec.md §9): schedule a closure to run once after a delay, with
// the ability to cancel it before it fires.
type Timer interface {
	ScheduleAfter(d time.Duration, fn func()) CancelFunc
}

// CronTimer implements Timer on top of a single shared
// github.com/robfig/cron/v3 scheduler (the same library
// SimonWaldherr-tinySQL's internal/storage/scheduler.go uses for its job
// scheduler). cron.Schedule only knows how to run recurring schedules,
// so ScheduleAfter turns cron.Every(d) into a one-shot delayed job by
// having the job remove its own entry before calling fn.
type CronTimer struct {
	c *cron.Cron
}

// NewCronTimer starts a new cron scheduler and returns a Timer backed
// by it. Stop must be called to release the scheduler's goroutine.
func NewCronTimer() *CronTimer {
	c := cron.New()
	c.Start()
	return &CronTimer{c: c}
}

// ScheduleAfter implements Timer.
func (t *CronTimer) ScheduleAfter(d time.Duration, fn func()) CancelFunc {
	var id cron.EntryID
	id = t.c.Schedule(cron.Every(d), cron.FuncJob(func() {
		t.c.Remove(id)
		fn()
	}))
	return func() { t.c.Remove(id) }
}

// Stop halts the underlying scheduler, waiting for any in-flight job to
// finish.
func (t *CronTimer) Stop() {
	<-t.c.Stop().Done()
}

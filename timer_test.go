package sgvmem

import (
	"testing"
	"time"
)

// cron.Every rounds its schedule to the nearest second (robfig/cron/v3's
// documented granularity), so these tests use second-scale delays rather
// than sub-second ones.

func TestCronTimerScheduleAfterFires(t *testing.T) {
	ct := NewCronTimer()
	defer ct.Stop()

	done := make(chan struct{})
	ct.ScheduleAfter(1*time.Second, func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ScheduleAfter callback did not fire in time")
	}
}

func TestCronTimerCancelPreventsFire(t *testing.T) {
	ct := NewCronTimer()
	defer ct.Stop()

	fired := make(chan struct{}, 1)
	cancel := ct.ScheduleAfter(2*time.Second, func() { fired <- struct{}{} })
	cancel()

	select {
	case <-fired:
		t.Fatal("callback fired after cancel")
	case <-time.After(3 * time.Second):
	}
}

package workflow

import "time"

// Timer is the subset of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// debouncer coalesces bursts of calls so only the last one in a quiet
// window runs. It is guarded by the controller's mutex. A stale timer that
// already fired before Stop won the race is filtered by generation.
type debouncer struct {
	delay time.Duration
	after AfterFunc
	timer Timer
	gen   uint64
}

func newDebouncer(delay time.Duration, after AfterFunc) *debouncer {
	if after == nil {
		after = realAfterFunc
	}
	return &debouncer{delay: delay, after: after}
}

// schedule replaces any pending call with fire. fire receives the
// generation it was scheduled under.
func (d *debouncer) schedule(fire func(gen uint64)) {
	d.cancel()
	gen := d.gen
	d.timer = d.after(d.delay, func() { fire(gen) })
}

func (d *debouncer) cancel() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// current reports whether gen is the latest scheduled call.
func (d *debouncer) current(gen uint64) bool {
	return d.timer != nil && gen == d.gen
}

// done clears the timer after a call has run.
func (d *debouncer) done() {
	d.timer = nil
}

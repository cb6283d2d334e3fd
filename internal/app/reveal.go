package app

import "time"

// DefaultRevealDelay is how long an answered question stays revealed.
const DefaultRevealDelay = 2 * time.Second

// Scheduler runs f once after d. The returned stop function reports whether
// the call was prevented.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// RealScheduler schedules with time.AfterFunc.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// revealTimer is a single-flight delayed transition. It is not safe for
// concurrent use; the owning session guards it with its mutex.
//
// Every schedule hands out a token. A callback only counts when its token is
// still the pending one, so a timer that lost the race against cancel (Stop
// returned false while the callback waited on the session lock) is ignored.
type revealTimer struct {
	sched   Scheduler
	delay   time.Duration
	token   uint64
	pending bool
	stop    func() bool
}

func newRevealTimer(sched Scheduler, delay time.Duration) *revealTimer {
	if sched == nil {
		sched = RealScheduler{}
	}
	if delay <= 0 {
		delay = DefaultRevealDelay
	}
	return &revealTimer{sched: sched, delay: delay}
}

// schedule cancels any pending timer and arms a new one. fire receives the
// token it was scheduled with.
func (t *revealTimer) schedule(fire func(token uint64)) {
	t.cancel()
	token := t.token
	t.pending = true
	t.stop = t.sched.AfterFunc(t.delay, func() { fire(token) })
}

// cancel is idempotent.
func (t *revealTimer) cancel() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	t.pending = false
	t.token++
}

// claim consumes the pending timer if token is current.
func (t *revealTimer) claim(token uint64) bool {
	if !t.pending || token != t.token {
		return false
	}
	t.pending = false
	t.stop = nil
	t.token++
	return true
}

func (t *revealTimer) isPending() bool {
	return t.pending
}

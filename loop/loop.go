// Package loop implements the single-threaded cooperative event loop that
// drives connection maintenance timers. All timers are periodic; callbacks
// run on the goroutine calling Run or RunOnce, never concurrently. Timers
// due at the same instant fire in registration order.
//
// The loop is not safe for concurrent use; it belongs to the goroutine
// driving the session.
package loop

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Callback is invoked each time a timer fires. The timer is passed in so a
// callback can remove itself.
type Callback func(ctx context.Context, t *Timer)

// Timer is a registered periodic timer.
type Timer struct {
	id       uuid.UUID
	interval time.Duration
	deadline time.Time
	cb       Callback
	removed  bool
}

// ID returns the timer's unique identity.
func (t *Timer) ID() uuid.UUID {
	return t.id
}

// Interval returns the timer's firing period.
func (t *Timer) Interval() time.Duration {
	return t.interval
}

// Option customizes loop construction.
type Option func(*Loop)

// WithClock replaces the loop's time source and sleeper. Used by tests to
// run the loop against a virtual clock.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(l *Loop) {
		l.now = now
		l.sleep = func(_ context.Context, d time.Duration) { sleep(d) }
	}
}

// Loop processes periodic timers in registration order.
type Loop struct {
	timers  []*Timer
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)
	stopped bool
}

// New creates an empty loop running on the real clock.
func New(opts ...Option) *Loop {
	l := &Loop{
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddPeriodic registers a persistent timer firing every interval, first at
// now+interval.
func (l *Loop) AddPeriodic(interval time.Duration, cb Callback) *Timer {
	t := &Timer{
		id:       uuid.New(),
		interval: interval,
		deadline: l.now().Add(interval),
		cb:       cb,
	}
	l.timers = append(l.timers, t)
	return t
}

// Remove deregisters a timer. Removing an already-removed timer is a no-op.
func (l *Loop) Remove(t *Timer) {
	if t == nil || t.removed {
		return
	}
	t.removed = true
	for i, candidate := range l.timers {
		if candidate == t {
			l.timers = append(l.timers[:i], l.timers[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered timers.
func (l *Loop) Len() int {
	return len(l.timers)
}

// Stop makes a blocking Run return after the current iteration.
func (l *Loop) Stop() {
	l.stopped = true
}

// RunOnce waits for the earliest timer deadline, then fires every due timer
// once, in registration order. It returns immediately when no timers are
// registered. May block.
func (l *Loop) RunOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(l.timers) == 0 {
		return nil
	}

	earliest := l.timers[0].deadline
	for _, t := range l.timers[1:] {
		if t.deadline.Before(earliest) {
			earliest = t.deadline
		}
	}
	if wait := earliest.Sub(l.now()); wait > 0 {
		l.sleep(ctx, wait)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := l.now()
	// Snapshot so callbacks adding timers do not fire within this batch.
	due := make([]*Timer, 0, len(l.timers))
	for _, t := range l.timers {
		if !t.deadline.After(now) {
			due = append(due, t)
		}
	}
	for _, t := range due {
		if t.removed {
			continue
		}
		t.deadline = now.Add(t.interval)
		t.cb(ctx, t)
	}

	return nil
}

// sleepContext waits for the duration but wakes early when the context is
// done; RunOnce re-checks the context after the wait.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Run processes timer events until no timers remain, Stop is called, or
// the context is done. Blocking.
func (l *Loop) Run(ctx context.Context) error {
	l.stopped = false
	for !l.stopped && len(l.timers) > 0 {
		if err := l.RunOnce(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Package timer implements the per-question countdown clock.
//
// Remaining time is always derived from wall-clock instants, never from a count of ticks,
// so a host that stops scheduling callbacks for a while still observes the right value on
// its next observation.
package timer

import (
	"context"
	"math"
	"sync"
	"time"
)

// Timer counts a fixed duration down from the instant Start is called.
// All methods are safe for concurrent use. Callbacks run without the timer's lock held.
type Timer struct {
	mu       sync.Mutex
	now      func() time.Time
	onTick   func(elapsed int)
	onExpire func()

	duration  time.Duration
	startedAt time.Time
	// remaining is authoritative while paused or after the countdown terminated.
	remaining time.Duration
	running   bool
	paused    bool
	expired   bool
	lastTick  int
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces time.Now, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// OnTick registers the callback that receives elapsed whole seconds.
func OnTick(fn func(elapsed int)) Option {
	return func(t *Timer) { t.onTick = fn }
}

// OnExpire registers the callback fired once when the countdown reaches zero.
func OnExpire(fn func()) Option {
	return func(t *Timer) { t.onExpire = fn }
}

func New(opts ...Option) *Timer {
	t := &Timer{now: time.Now, lastTick: -1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a fresh countdown of d, discarding any previous state.
func (t *Timer) Start(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
	t.startedAt = t.now()
	t.remaining = d
	t.running = true
	t.paused = false
	t.expired = false
	t.lastTick = -1
}

// Pause freezes the countdown and reports whether it did. Calling it twice has no additional
// effect. A countdown whose deadline already passed is not frozen: its expiry stays due and
// fires on the next Observe.
func (t *Timer) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.paused {
		return false
	}
	rem := t.remainingLocked()
	if rem <= 0 {
		return false
	}
	t.remaining = rem
	t.paused = true
	return true
}

// Resume continues a paused countdown with exactly the remaining time it had when paused.
// Without a prior Pause it does nothing.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || !t.paused {
		return
	}
	t.startedAt = t.now().Add(-(t.duration - t.remaining))
	t.paused = false
}

// Stop ends the countdown without expiring it and returns the elapsed whole seconds.
func (t *Timer) Stop() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.remaining = t.remainingLocked()
		t.running = false
		t.paused = false
	}
	return t.elapsedLocked(t.remaining)
}

// SetDuration changes the countdown length. Time already spent is kept and clamped to
// [0, d] so neither elapsed nor remaining time leaves its range.
func (t *Timer) SetDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		t.duration = d
		if t.remaining > d {
			t.remaining = d
		}
		return
	}

	spent := t.duration - t.remainingLocked()
	spent = min(max(spent, 0), d)
	t.duration = d
	if t.paused {
		t.remaining = d - spent
	} else {
		t.startedAt = t.now().Add(-spent)
	}
	if whole := wholeSeconds(d); t.lastTick > whole {
		t.lastTick = whole
	}
}

// Remaining returns the time left on the countdown.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

// Elapsed returns duration minus the remaining whole seconds, in [0, duration].
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked(t.remainingLocked())
}

// Duration returns the configured countdown length.
func (t *Timer) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Running reports whether a countdown is active (paused counts as active).
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Paused reports whether the countdown is frozen.
func (t *Timer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Expired reports whether the current countdown ran out.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// Observe samples the clock and fires the tick and expiry callbacks that are due.
// A tick fires only when a new whole second has been crossed; expiry fires at most once
// per countdown.
func (t *Timer) Observe() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}

	rem := t.remainingLocked()
	elapsed := t.elapsedLocked(rem)
	tick := elapsed > t.lastTick
	if tick {
		t.lastTick = elapsed
	}
	expire := rem <= 0 && !t.paused
	if expire {
		t.remaining = 0
		t.running = false
		t.expired = true
	}
	onTick, onExpire := t.onTick, t.onExpire
	t.mu.Unlock()

	if tick && onTick != nil {
		onTick(elapsed)
	}
	if expire && onExpire != nil {
		onExpire()
	}
}

// Run observes the timer every interval until ctx is done. The loop survives restarts,
// so one Run can serve several consecutive countdowns.
func (t *Timer) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	t.Observe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Observe()
		}
	}
}

func (t *Timer) remainingLocked() time.Duration {
	if !t.running || t.paused {
		return t.remaining
	}
	rem := t.duration - t.now().Sub(t.startedAt)
	return min(max(rem, 0), t.duration)
}

func (t *Timer) elapsedLocked(rem time.Duration) int {
	total := wholeSeconds(t.duration)
	remWhole := int(math.Ceil(rem.Seconds()))
	return min(max(total-remWhole, 0), total)
}

func wholeSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

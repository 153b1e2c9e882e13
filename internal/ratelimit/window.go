// Package ratelimit provides a rolling-window admission limiter for outbound
// Bot API calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// slack is added to computed waits so the oldest stamp has surely left the
// window when the caller wakes up.
const slack = 100 * time.Millisecond

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Window admits at most maxCalls calls inside any trailing window.
type Window struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	stamps   []time.Time

	now   func() time.Time
	sleep SleepFunc
}

// Option configures a Window.
type Option func(*Window)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// WithSleep replaces the sleeper used while waiting for capacity.
func WithSleep(sleep SleepFunc) Option {
	return func(w *Window) { w.sleep = sleep }
}

// New creates a limiter. maxCalls <= 0 disables limiting, but admissions are
// still recorded so a later SetLimit takes effect immediately.
func New(maxCalls int, window time.Duration, opts ...Option) *Window {
	w := &Window{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Admit blocks until a call may be made and returns the total time waited.
func (w *Window) Admit(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		wait, ok := w.tryAdmit()
		if ok {
			return waited, nil
		}
		if err := w.sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

// tryAdmit purges expired stamps and either records a new admission or
// reports how long to wait. The whole sequence runs under the lock.
func (w *Window) tryAdmit() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.purge(now)

	if w.maxCalls <= 0 || len(w.stamps) < w.maxCalls {
		w.stamps = append(w.stamps, now)
		return 0, true
	}

	wait := w.stamps[0].Add(w.window).Sub(now) + slack
	if wait < slack {
		wait = slack
	}
	return wait, false
}

func (w *Window) purge(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// SetLimit changes the cap. Recorded admissions are kept.
func (w *Window) SetLimit(maxCalls int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxCalls = maxCalls
}

// Len returns the number of admissions inside the current window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purge(w.now())
	return len(w.stamps)
}

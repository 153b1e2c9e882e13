package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default pacing for the crawler account. Joins and history reads are far
// more flood-prone than bot API calls, so the budget is small.
const (
	defaultRequestsPerSecond = 2.0
	defaultBurst             = 1
)

// Pacer spaces MTProto requests and holds all of them back while a
// FLOOD_WAIT penalty is in force.
type Pacer struct {
	limiter *rate.Limiter
	now     func() time.Time

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewPacer allows rps requests per second with the given burst.
func NewPacer(rps float64, burst int) *Pacer {
	return &Pacer{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
	}
}

// DefaultPacer returns the pacer used by NewClient.
func DefaultPacer() *Pacer {
	return NewPacer(defaultRequestsPerSecond, defaultBurst)
}

// Wait blocks until a flood pause has passed and the limiter grants a slot.
func (p *Pacer) Wait(ctx context.Context) error {
	if d := p.PausedUntil().Sub(p.now()); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.limiter.Wait(ctx)
}

// Pause holds requests back for d. A shorter penalty never cuts an active
// longer one.
func (p *Pacer) Pause(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if until := p.now().Add(d); until.After(p.pausedUntil) {
		p.pausedUntil = until
	}
}

// PausedUntil returns the end of the current flood pause, zero when none
// was ever set.
func (p *Pacer) PausedUntil() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pausedUntil
}

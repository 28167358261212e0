package chatclient

import (
	"context"
	"sync"
	"time"

	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/therapy"
)

// Countdown tracks the time left in an in-progress therapy session. The
// remaining time is always recomputed from started_at and the wall clock,
// so a late joiner sees the same value as everyone else.
type Countdown struct {
	session  model.TherapySession
	now      func() time.Time
	onExpire func()
	once     sync.Once
}

// NewCountdown returns a countdown for session. onExpire runs exactly once,
// the first time the remaining time is found to be zero. A nil now uses
// time.Now.
func NewCountdown(session model.TherapySession, now func() time.Time, onExpire func()) *Countdown {
	if now == nil {
		now = time.Now
	}
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Countdown{session: session, now: now, onExpire: onExpire}
}

func (c *Countdown) Remaining() time.Duration {
	return therapy.Remaining(c.session, c.now())
}

// Check fires onExpire if the session ran out of time and reports whether it
// has.
func (c *Countdown) Check() bool {
	if c.session.Status != model.TherapyInProgress || c.session.StartedAt == nil {
		return false
	}
	if c.Remaining() > 0 {
		return false
	}
	c.once.Do(c.onExpire)
	return true
}

// Run checks every tick until the session expires or ctx ends.
func (c *Countdown) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		if c.Check() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

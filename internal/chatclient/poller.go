package chatclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/johndosdos/haven/internal/model"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollJitter   = time.Second
)

type PollerOption func(*PendingPoller)

// WithInterval sets the poll interval and the random jitter added to each
// wait.
func WithInterval(interval, jitter time.Duration) PollerOption {
	return func(p *PendingPoller) {
		if interval > 0 {
			p.interval = interval
		}
		p.jitter = max(jitter, 0)
	}
}

func WithErrorHandler(onError func(error)) PollerOption {
	return func(p *PendingPoller) { p.onError = onError }
}

// PendingPoller refreshes a therapist's queue of pending requests. Waits are
// jittered so many therapists do not poll in lockstep, and failures back off
// exponentially until a poll succeeds again.
type PendingPoller struct {
	api      *API
	interval time.Duration
	jitter   time.Duration
	onUpdate func([]model.TherapySession)
	onError  func(error)
}

func NewPendingPoller(api *API, onUpdate func([]model.TherapySession), opts ...PollerOption) *PendingPoller {
	p := &PendingPoller{
		api:      api,
		interval: DefaultPollInterval,
		jitter:   DefaultPollJitter,
		onUpdate: onUpdate,
		onError:  func(err error) { slog.Warn("failed to poll pending therapy requests", "error", err) },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func failureBackoff(base time.Duration) retry.Backoff {
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	return retry.WithCappedDuration(time.Minute, b)
}

// Run polls until ctx ends. The first poll happens immediately.
func (p *PendingPoller) Run(ctx context.Context) error {
	ticks := retry.NewConstant(p.interval)
	if p.jitter > 0 {
		ticks = retry.WithJitter(p.jitter, ticks)
	}
	failures := failureBackoff(p.interval)

	for {
		wait, _ := ticks.Next()

		sessions, err := p.api.PendingTherapy(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			p.onError(err)
			if d, stop := failures.Next(); !stop {
				wait = max(wait, d)
			}
		default:
			failures = failureBackoff(p.interval)
			p.onUpdate(sessions)
		}

		t := time.NewTimer(max(wait, 0))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

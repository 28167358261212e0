// Package broker distributes realtime deliveries. Every process publishes
// what it wants delivered and fans out whatever comes back from its
// subscription, so a delivery reaches the right sockets no matter which
// process holds them.
package broker

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/johndosdos/haven/internal/event"
)

type Scope string

const (
	// ScopeGroup targets every member of a chat group.
	ScopeGroup Scope = "group"
	// ScopeSession targets the connection holding one chat session.
	ScopeSession Scope = "session"
	// ScopeTherapy targets everyone joined to a therapy session room.
	ScopeTherapy Scope = "therapy"
)

// Delivery is an event addressed to a set of connections. Exclude names a
// chat session or therapy participant that must not receive it.
type Delivery struct {
	Scope   Scope          `json:"scope"`
	Target  string         `json:"target"`
	Exclude string         `json:"exclude,omitempty"`
	Event   event.Envelope `json:"event"`
}

func ToGroup(groupID int64, env event.Envelope) Delivery {
	return Delivery{Scope: ScopeGroup, Target: strconv.FormatInt(groupID, 10), Event: env}
}

func ToSession(sessionID string, env event.Envelope) Delivery {
	return Delivery{Scope: ScopeSession, Target: sessionID, Event: env}
}

func ToTherapy(sessionID int64, env event.Envelope) Delivery {
	return Delivery{Scope: ScopeTherapy, Target: strconv.FormatInt(sessionID, 10), Event: env}
}

// Except returns a copy of d that skips the given session or participant.
func (d Delivery) Except(id string) Delivery {
	d.Exclude = id
	return d
}

type Broker interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe calls handle for every delivery until ctx is done.
	Subscribe(ctx context.Context, handle func(Delivery)) error
}

var ErrSubscribed = errors.New("local broker already has a subscriber")

// Local is an in-process Broker for single-instance deployments and tests.
// It supports a single subscriber.
type Local struct {
	ch chan Delivery

	mu         sync.Mutex
	subscribed bool
}

func NewLocal() *Local {
	return &Local{ch: make(chan Delivery, 1024)}
}

func (l *Local) Publish(ctx context.Context, d Delivery) error {
	select {
	case l.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Subscribe(ctx context.Context, handle func(Delivery)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subscribed {
		return ErrSubscribed
	}
	l.subscribed = true

	go func() {
		for {
			select {
			case d := <-l.ch:
				handle(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

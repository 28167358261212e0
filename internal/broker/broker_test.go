package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/haven/internal/event"
)

func TestLocalDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewLocal()
	got := make(chan Delivery, 3)
	require.NoError(t, b.Subscribe(ctx, func(d Delivery) { got <- d }))
	assert.ErrorIs(t, b.Subscribe(ctx, func(Delivery) {}), ErrSubscribed)

	for _, target := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, ToSession(target, event.ErrorEvent(event.CodeBadRequest, target))))
	}

	for _, want := range []string{"a", "b", "c"} {
		select {
		case d := <-got:
			assert.Equal(t, want, d.Target)
			assert.Equal(t, ScopeSession, d.Scope)
		case <-time.After(time.Second):
			t.Fatal("delivery not received")
		}
	}
}

func TestLocalPublishHonoursContext(t *testing.T) {
	b := &Local{ch: make(chan Delivery)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Publish(ctx, ToGroup(1, event.ErrorEvent(event.CodeInternal, "x")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeliveryJSON(t *testing.T) {
	d := ToGroup(7, event.Must(event.UserLeft, event.UserLeftPayload{Username: "BraveFox42"})).Except("s1")

	p, err := json.Marshal(d)
	require.NoError(t, err)

	var back Delivery
	require.NoError(t, json.Unmarshal(p, &back))
	assert.Equal(t, ScopeGroup, back.Scope)
	assert.Equal(t, "7", back.Target)
	assert.Equal(t, "s1", back.Exclude)
	assert.Equal(t, event.UserLeft, back.Event.Type)
	assert.JSONEq(t, string(d.Event.Data), string(back.Event.Data))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "HAVEN.deliveries.therapy", Subject(ScopeTherapy))
}

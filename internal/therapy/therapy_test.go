package therapy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/haven/internal/memstore"
	"github.com/johndosdos/haven/internal/model"
)

type recordingNotifier struct {
	mu       sync.Mutex
	started  []int64
	ended    []int64
	messages []model.TherapyMessage
}

func (n *recordingNotifier) SessionStarted(_ context.Context, s model.TherapySession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, s.ID)
}

func (n *recordingNotifier) SessionEnded(_ context.Context, s model.TherapySession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, s.ID)
}

func (n *recordingNotifier) MessageCreated(_ context.Context, msg model.TherapyMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*Service, *recordingNotifier, *clock) {
	t.Helper()

	c := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	n := &recordingNotifier{}
	s := NewService(memstore.New())
	s.SetClock(c.Now)
	s.SetNotifier(n)
	return s, n, c
}

func startedSession(t *testing.T, s *Service) model.TherapySession {
	t.Helper()
	ctx := context.Background()

	req, err := s.Request(ctx, "user-1", "user@example.com")
	require.NoError(t, err)
	_, err = s.Accept(ctx, req.ID, "therapist-1")
	require.NoError(t, err)
	started, err := s.Start(ctx, req.ID, "therapist-1")
	require.NoError(t, err)
	return started
}

func TestRemaining(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	inProgress := model.TherapySession{Status: model.TherapyInProgress, StartedAt: &t0}

	tests := []struct {
		name    string
		session model.TherapySession
		now     time.Time
		want    time.Duration
	}{
		{"at_start", inProgress, t0, 900 * time.Second},
		{"after_400s", inProgress, t0.Add(400 * time.Second), 500 * time.Second},
		{"exactly_zero", inProgress, t0.Add(15 * time.Minute), 0},
		{"overdue_clamped", inProgress, t0.Add(time.Hour), 0},
		{"not_started", model.TherapySession{Status: model.TherapyAccepted}, t0, 0},
		{"ended", model.TherapySession{Status: model.TherapyEnded, StartedAt: &t0}, t0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Remaining(tt.session, tt.now))
		})
	}
}

func TestRemainingIsRecomputedFromStart(t *testing.T) {
	s, _, c := setup(t)
	session := startedSession(t, s)

	c.Advance(400 * time.Second)
	// A late joiner loads the session now and must see the same countdown.
	loaded, err := s.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Second, Remaining(loaded, c.Now()))
	assert.Equal(t, 500*time.Second, Remaining(session, c.Now()))
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	s, n, c := setup(t)

	req, err := s.Request(ctx, "user-1", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.TherapyRequested, req.Status)
	assert.Equal(t, 15, req.ScheduledDuration)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = s.Start(ctx, req.ID, "therapist-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	accepted, err := s.Accept(ctx, req.ID, "therapist-1")
	require.NoError(t, err)
	assert.Equal(t, model.TherapyAccepted, accepted.Status)
	assert.Equal(t, "therapist-1", accepted.TherapistID)

	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = s.Accept(ctx, req.ID, "therapist-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Start(ctx, req.ID, "therapist-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	started, err := s.Start(ctx, req.ID, "therapist-1")
	require.NoError(t, err)
	assert.Equal(t, model.TherapyInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, []int64{req.ID}, n.started)

	c.Advance(5 * time.Minute)
	ended, changed, err := s.End(ctx, req.ID, Actor{ID: "user-1", Role: model.RoleUser})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.TherapyEnded, ended.Status)
	require.NotNil(t, ended.ActualDuration)
	assert.Equal(t, 5, *ended.ActualDuration)

	_, err = s.Accept(ctx, req.ID, "therapist-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAcceptMissingSession(t *testing.T) {
	s, _, _ := setup(t)

	_, err := s.Accept(context.Background(), 42, "therapist-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, n, c := setup(t)
	session := startedSession(t, s)
	c.Advance(SessionDuration)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	errs := make([]error, 2)
	actors := []Actor{{ID: "user-1", Role: model.RoleUser}, {ID: "therapist-1", Role: model.RoleTherapist}}
	for i, actor := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i], errs[i] = s.End(ctx, session.ID, actor)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, results[0] != results[1], "exactly one caller ends the session")
	assert.Len(t, n.ended, 1)

	again, changed, err := s.End(ctx, session.ID, actors[0])
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.TherapyEnded, again.Status)
}

func TestEndRequiresParticipant(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	session := startedSession(t, s)

	_, _, err := s.End(ctx, session.ID, Actor{ID: "stranger", Role: model.RoleUser})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, changed, err := s.End(ctx, session.ID, Actor{ID: "root", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	s, n, _ := setup(t)
	session := startedSession(t, s)

	msg, err := s.SendMessage(ctx, session.ID, "user-1", model.SenderUser, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Content)
	require.Len(t, n.messages, 1)

	_, err = s.SendMessage(ctx, session.ID, "user-1", model.SenderTherapist, "spoofed")
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = s.SendMessage(ctx, session.ID, "user-1", model.SenderUser, "   ")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	msgs, err := s.Messages(ctx, session.ID, Actor{ID: "therapist-1", Role: model.RoleTherapist})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = s.Messages(ctx, session.ID, Actor{ID: "user-2", Role: model.RoleUser})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestEndedSessionRejectsMessages(t *testing.T) {
	ctx := context.Background()
	s, n, _ := setup(t)
	session := startedSession(t, s)

	_, _, err := s.End(ctx, session.ID, Actor{ID: "therapist-1", Role: model.RoleTherapist})
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, session.ID, "user-1", model.SenderUser, "still there?")
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Empty(t, n.messages)
}

// endAfterRead ends the session right after the next read, so the end lands
// between SendMessage's status check and its insert.
type endAfterRead struct {
	*memstore.Store
	armed bool
}

func (e *endAfterRead) GetTherapySession(ctx context.Context, id int64) (model.TherapySession, error) {
	ts, err := e.Store.GetTherapySession(ctx, id)
	if err == nil && e.armed {
		e.armed = false
		if _, err := e.Store.EndTherapySession(ctx, id, time.Now().UTC()); err != nil {
			return ts, err
		}
	}
	return ts, err
}

func TestSessionEndedDuringSendRejectsMessage(t *testing.T) {
	ctx := context.Background()
	store := &endAfterRead{Store: memstore.New()}
	s := NewService(store)
	n := &recordingNotifier{}
	s.SetNotifier(n)
	session := startedSession(t, s)

	store.armed = true
	_, err := s.SendMessage(ctx, session.ID, "user-1", model.SenderUser, "are you there?")
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Empty(t, n.messages)

	stored, err := store.ListTherapyMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestExpiredSessionEndsOnSend(t *testing.T) {
	ctx := context.Background()
	s, n, c := setup(t)
	session := startedSession(t, s)

	c.Advance(SessionDuration + time.Second)
	_, err := s.SendMessage(ctx, session.ID, "therapist-1", model.SenderTherapist, "late")
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, []int64{session.ID}, n.ended)

	loaded, err := s.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TherapyEnded, loaded.Status)
}

func TestRequestValidation(t *testing.T) {
	s, _, _ := setup(t)

	_, err := s.Request(context.Background(), "", "a@b.c")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

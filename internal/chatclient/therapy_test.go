package chatclient

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/haven/internal/model"
)

// endCounter counts end requests made through one client.
type endCounter struct {
	next  http.RoundTripper
	count atomic.Int32
}

func (c *endCounter) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/therapy/end/") {
		c.count.Add(1)
	}
	return c.next.RoundTrip(r)
}

func countingAPI(t *testing.T, s *server, subject string, role model.Role) (*API, *endCounter) {
	t.Helper()
	counter := &endCounter{next: http.DefaultTransport}
	api := NewAPI(s.url, &http.Client{Transport: counter, Timeout: 5 * time.Second})
	api.SetToken(token(t, subject, role))
	return api, counter
}

func TestTherapyRoomEndsExpiredSessionOnce(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	userAPI, userEnds := countingAPI(t, s, "user-1", model.RoleUser)
	therapistAPI, therapistEnds := countingAPI(t, s, "therapist-1", model.RoleTherapist)

	session, err := userAPI.RequestTherapy(ctx, "user-1", "user-1@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.TherapyRequested, session.Status)

	_, err = therapistAPI.AcceptTherapy(ctx, session.ID, "")
	require.NoError(t, err)
	session, err = therapistAPI.StartTherapy(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, model.TherapyInProgress, session.Status)

	// Both participants' clocks are past the 15 minute mark.
	late := func() time.Time { return time.Now().Add(20 * time.Minute) }

	rooms := []struct {
		api     *API
		subject string
		role    model.Role
		sender  model.SenderType
	}{
		{userAPI, "user-1", model.RoleUser, model.SenderUser},
		{therapistAPI, "therapist-1", model.RoleTherapist, model.SenderTherapist},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(rooms))
	var started []*TherapyRoom
	for _, rc := range rooms {
		room, err := NewTherapyRoom(TherapyOptions{
			URL:        s.ws,
			Token:      token(t, rc.subject, rc.role),
			SessionID:  session.ID,
			UserID:     rc.subject,
			SenderType: rc.sender,
			API:        rc.api,
			Backoff:    fastBackoff,
			Now:        late,
			Tick:       10 * time.Millisecond,
		})
		require.NoError(t, err)
		started = append(started, room)

		wg.Add(1)
		go func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			errs <- room.Run(rctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	for _, room := range started {
		assert.True(t, room.Ended())
		assert.Zero(t, room.Remaining())
		assert.ErrorIs(t, room.Send(ctx, "still there?"), ErrSessionEnded)
	}

	assert.LessOrEqual(t, userEnds.count.Load(), int32(1))
	assert.LessOrEqual(t, therapistEnds.count.Load(), int32(1))
	assert.GreaterOrEqual(t, userEnds.count.Load()+therapistEnds.count.Load(), int32(1))

	final, err := userAPI.TherapySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TherapyEnded, final.Status)
	require.NotNil(t, final.EndedAt)
}

func TestTherapyRoomExchangesMessages(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userAPI, _ := countingAPI(t, s, "user-2", model.RoleUser)
	therapistAPI, _ := countingAPI(t, s, "therapist-2", model.RoleTherapist)

	session, err := userAPI.RequestTherapy(ctx, "user-2", "user-2@example.com")
	require.NoError(t, err)
	_, err = therapistAPI.AcceptTherapy(ctx, session.ID, "")
	require.NoError(t, err)
	_, err = therapistAPI.StartTherapy(ctx, session.ID)
	require.NoError(t, err)

	user, err := NewTherapyRoom(TherapyOptions{
		URL:       s.ws,
		Token:     token(t, "user-2", model.RoleUser),
		SessionID: session.ID,
		UserID:    "user-2",
		API:       userAPI,
		Backoff:   fastBackoff,
	})
	require.NoError(t, err)
	therapist, err := NewTherapyRoom(TherapyOptions{
		URL:        s.ws,
		Token:      token(t, "therapist-2", model.RoleTherapist),
		SessionID:  session.ID,
		UserID:     "therapist-2",
		SenderType: model.SenderTherapist,
		API:        therapistAPI,
		Backoff:    fastBackoff,
	})
	require.NoError(t, err)

	go user.Run(ctx)
	go therapist.Run(ctx)

	require.Eventually(t, func() bool {
		return user.Remaining() > 14*time.Minute && therapist.Remaining() > 14*time.Minute
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, user.Send(ctx, "I had a rough week"))
	require.Eventually(t, func() bool {
		return len(therapist.Messages()) == 1 && len(user.Messages()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.SenderUser, therapist.Messages()[0].SenderType)

	_, err = therapistAPI.EndTherapy(ctx, session.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return user.Ended() && therapist.Ended() }, 3*time.Second, 10*time.Millisecond)
}

func TestNewTherapyRoomValidation(t *testing.T) {
	_, err := NewTherapyRoom(TherapyOptions{URL: "ws://x", SessionID: 1, UserID: "u"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "token", verr.Field)

	_, err = NewTherapyRoom(TherapyOptions{URL: "ws://x", Token: "t", UserID: "u"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session_id", verr.Field)
}

func TestCountdown(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := t0.Add(400 * time.Second)
	session := model.TherapySession{ID: 1, Status: model.TherapyInProgress, StartedAt: &t0}

	var fired atomic.Int32
	cd := NewCountdown(session, func() time.Time { return now }, func() { fired.Add(1) })
	assert.Equal(t, 500*time.Second, cd.Remaining())
	assert.False(t, cd.Check())

	now = t0.Add(16 * time.Minute)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cd.Check()
		}()
	}
	wg.Wait()
	assert.Zero(t, cd.Remaining())
	assert.Equal(t, int32(1), fired.Load())
}

func TestCountdownIgnoresSessionsNotStarted(t *testing.T) {
	var fired bool
	cd := NewCountdown(model.TherapySession{Status: model.TherapyAccepted}, nil, func() { fired = true })
	assert.False(t, cd.Check())
	assert.Zero(t, cd.Remaining())
	assert.False(t, fired)
}

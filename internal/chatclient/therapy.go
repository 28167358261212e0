package chatclient

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/johndosdos/haven/internal/event"
	"github.com/johndosdos/haven/internal/model"
)

type TherapyOptions struct {
	URL string
	// Token is the access token; the realtime endpoint reads it from the
	// token query parameter.
	Token      string
	SessionID  int64
	UserID     string
	SenderType model.SenderType
	API        *API
	Backoff    func() retry.Backoff
	// Now and Tick drive the countdown. They default to time.Now and one
	// second.
	Now     func() time.Time
	Tick    time.Duration
	OnEvent func(t event.Type, payload any)
}

// TherapyRoom is a participant's connection to one therapy session. When
// the countdown reaches zero the room ends the session through the API once.
type TherapyRoom struct {
	opts TherapyOptions

	mu        sync.Mutex
	conn      *websocket.Conn
	session   *model.TherapySession
	countdown *Countdown
	messages  []model.TherapyMessage
	ended     bool
	stopTimer context.CancelFunc
}

func NewTherapyRoom(opts TherapyOptions) (*TherapyRoom, error) {
	switch {
	case opts.URL == "":
		return nil, &ValidationError{Field: "url", Message: "is required"}
	case opts.SessionID <= 0:
		return nil, &ValidationError{Field: "session_id", Message: "is required"}
	case opts.UserID == "":
		return nil, &ValidationError{Field: "user_id", Message: "is required"}
	case opts.Token == "":
		return nil, &ValidationError{Field: "token", Message: "is required"}
	}
	if opts.SenderType == "" {
		opts.SenderType = model.SenderUser
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(event.Type, any) {}
	}
	return &TherapyRoom{opts: opts}, nil
}

// Run joins the session room and serves it until the session ends or ctx is
// done. Dropped connections are retried.
func (r *TherapyRoom) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.stopCountdown()

	url := withQuery(r.opts.URL, "token", r.opts.Token)
	for {
		conn, err := dial(ctx, url, r.opts.Backoff())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()

		err = r.serve(ctx, conn)

		r.mu.Lock()
		r.conn = nil
		ended := r.ended
		r.mu.Unlock()

		if ended {
			conn.Close(websocket.StatusNormalClosure, "session ended")
			return nil
		}
		conn.CloseNow()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.InfoContext(ctx, "therapy connection lost, reconnecting",
			"session_id", r.opts.SessionID,
			"error", err)
	}
}

func (r *TherapyRoom) serve(ctx context.Context, conn *websocket.Conn) error {
	err := write(ctx, conn, event.JoinTherapySession, event.JoinTherapyPayload{
		SessionID: r.opts.SessionID,
		UserID:    r.opts.UserID,
	})
	if err != nil {
		return err
	}

	if r.opts.API != nil {
		history, err := r.opts.API.TherapyMessages(ctx, r.opts.SessionID)
		if err != nil {
			slog.WarnContext(ctx, "failed to load therapy history", "session_id", r.opts.SessionID, "error", err)
		} else {
			r.mu.Lock()
			r.merge(history)
			r.mu.Unlock()
		}
	}

	for {
		t, payload, err := read(ctx, conn)
		if err != nil {
			return err
		}
		if r.handle(ctx, t, payload) {
			return nil
		}
	}
}

func (r *TherapyRoom) handle(ctx context.Context, t event.Type, payload any) bool {
	done := false

	switch p := payload.(type) {
	case *event.TherapySessionPayload:
		if t == event.TherapySessionEnded || p.Session.Status == model.TherapyEnded {
			r.markEnded(p.Session)
			done = true
			break
		}
		r.started(ctx, p.Session)

	case *event.NewTherapyMessagePayload:
		r.mu.Lock()
		r.merge([]model.TherapyMessage{p.Message})
		r.mu.Unlock()

	case *event.ErrorPayload:
		switch p.Code {
		case event.CodeSessionEnded:
			r.markEnded(model.TherapySession{})
			done = true
		case event.CodeUnauthorized:
			slog.WarnContext(ctx, "therapy room rejected", "session_id", r.opts.SessionID, "message", p.Message)
		}
	}

	r.opts.OnEvent(t, payload)
	return done
}

// started records the in-progress session and starts the countdown the
// first time it is seen.
func (r *TherapyRoom) started(ctx context.Context, s model.TherapySession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.session = &s
	if r.countdown != nil || r.ended {
		return
	}

	r.countdown = NewCountdown(s, r.opts.Now, func() { r.expire(ctx) })
	tctx, cancel := context.WithCancel(ctx)
	r.stopTimer = cancel
	go r.countdown.Run(tctx, r.opts.Tick)
}

// expire ends the session when the countdown reaches zero. The server
// treats a second end as a no-op, so a race with the other participant is
// harmless.
func (r *TherapyRoom) expire(ctx context.Context) {
	if r.opts.API == nil {
		return
	}
	s, err := r.opts.API.EndTherapy(ctx, r.opts.SessionID)
	if err != nil {
		slog.WarnContext(ctx, "failed to end expired therapy session", "session_id", r.opts.SessionID, "error", err)
		return
	}
	slog.InfoContext(ctx, "therapy session time is up", "session_id", s.ID)

	// The ended broadcast may have gone out before this connection joined
	// the room, so the response is authoritative too.
	if s.Status == model.TherapyEnded {
		r.markEnded(s)
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "session ended")
		}
	}
}

func (r *TherapyRoom) markEnded(s model.TherapySession) {
	r.mu.Lock()
	r.ended = true
	if s.ID != 0 {
		r.session = &s
	}
	stop := r.stopTimer
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (r *TherapyRoom) stopCountdown() {
	r.mu.Lock()
	stop := r.stopTimer
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// merge must be called with mu held.
func (r *TherapyRoom) merge(in []model.TherapyMessage) {
	r.messages = mergeByID(r.messages, in, func(m model.TherapyMessage) int64 { return m.ID })
}

func (r *TherapyRoom) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return &ValidationError{Field: "content", Message: "message cannot be empty"}
	}

	r.mu.Lock()
	ended, conn := r.ended, r.conn
	r.mu.Unlock()
	if ended {
		return ErrSessionEnded
	}

	return write(ctx, conn, event.SendTherapyMessage, event.SendTherapyMessagePayload{
		SessionID:  r.opts.SessionID,
		SenderID:   r.opts.UserID,
		SenderType: r.opts.SenderType,
		Content:    content,
	})
}

// Remaining is the countdown value, zero until the session has started.
func (r *TherapyRoom) Remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countdown == nil || r.ended {
		return 0
	}
	return r.countdown.Remaining()
}

func (r *TherapyRoom) Session() *model.TherapySession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	s := *r.session
	return &s
}

func (r *TherapyRoom) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func (r *TherapyRoom) Messages() []model.TherapyMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages)
}

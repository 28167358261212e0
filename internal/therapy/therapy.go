// Package therapy implements the therapy session state machine:
// requested -> accepted -> in_progress -> ended, with a fixed 15 minute
// countdown derived from started_at.
package therapy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/moderation"
)

const SessionDuration = 15 * time.Minute

var (
	ErrInvalidTransition = errors.New("invalid therapy session transition")
	ErrSessionEnded      = errors.New("therapy session has ended")
	ErrNotParticipant    = errors.New("not a participant of this therapy session")
	ErrInvalidRequest    = errors.New("invalid therapy request")
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role model.Role
}

// Notifier is told about changes participants must see in real time.
type Notifier interface {
	SessionStarted(ctx context.Context, s model.TherapySession)
	SessionEnded(ctx context.Context, s model.TherapySession)
	MessageCreated(ctx context.Context, msg model.TherapyMessage)
}

type nopNotifier struct{}

func (nopNotifier) SessionStarted(context.Context, model.TherapySession) {}
func (nopNotifier) SessionEnded(context.Context, model.TherapySession)   {}
func (nopNotifier) MessageCreated(context.Context, model.TherapyMessage) {}

// Remaining returns the countdown of an in-progress session. It is always
// recomputed from started_at so a late joiner sees the same value as
// everyone else.
func Remaining(s model.TherapySession, now time.Time) time.Duration {
	if s.Status != model.TherapyInProgress || s.StartedAt == nil {
		return 0
	}
	return max(0, SessionDuration-now.Sub(*s.StartedAt))
}

// CanAccess reports whether actor may read the session. Any therapist may
// read a session that is still requested so it can be picked from the queue.
func CanAccess(s model.TherapySession, actor Actor) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleTherapist:
		return s.TherapistID == actor.ID || s.Status == model.TherapyRequested
	default:
		return s.UserRef == actor.ID
	}
}

type Service struct {
	store     Store
	notify    Notifier
	sanitizer *moderation.Sanitizer
	now       func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store:     store,
		notify:    nopNotifier{},
		sanitizer: moderation.NewSanitizer(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier registers the realtime fan-out. It must be called before the
// service is used concurrently.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notify = n
}

// SetClock replaces time.Now. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Request(ctx context.Context, userRef, email string) (model.TherapySession, error) {
	if userRef == "" || email == "" {
		return model.TherapySession{}, fmt.Errorf("%w: user_session_id and user_email are required", ErrInvalidRequest)
	}

	session, err := s.store.CreateTherapySession(ctx, model.TherapySession{
		UserRef:           userRef,
		UserEmail:         email,
		Status:            model.TherapyRequested,
		ScheduledDuration: int(SessionDuration / time.Minute),
		CreatedAt:         s.now(),
	})
	if err != nil {
		return model.TherapySession{}, fmt.Errorf("failed to create therapy request: %w", err)
	}

	slog.InfoContext(ctx, "therapy session requested", "session_id", session.ID)
	return session, nil
}

func (s *Service) Pending(ctx context.Context) ([]model.TherapySession, error) {
	return s.store.ListTherapySessionsByStatus(ctx, model.TherapyRequested)
}

func (s *Service) Get(ctx context.Context, id int64) (model.TherapySession, error) {
	return s.store.GetTherapySession(ctx, id)
}

func (s *Service) UserSessions(ctx context.Context, userRef string) ([]model.TherapySession, error) {
	return s.store.ListUserTherapySessions(ctx, userRef)
}

func (s *Service) TherapistSessions(ctx context.Context, therapistID string) ([]model.TherapySession, error) {
	return s.store.ListTherapistSessions(ctx, therapistID)
}

// transition maps a store conflict to ErrInvalidTransition, keeping
// ErrNotFound for missing sessions.
func (s *Service) transition(ctx context.Context, id int64, err error) error {
	if !errors.Is(err, model.ErrConflict) {
		return err
	}
	if _, getErr := s.store.GetTherapySession(ctx, id); errors.Is(getErr, model.ErrNotFound) {
		return getErr
	}
	return ErrInvalidTransition
}

func (s *Service) Accept(ctx context.Context, id int64, therapistID string) (model.TherapySession, error) {
	if therapistID == "" {
		return model.TherapySession{}, fmt.Errorf("%w: therapist_id is required", ErrInvalidRequest)
	}

	session, err := s.store.AcceptTherapySession(ctx, id, therapistID, s.now())
	if err != nil {
		return model.TherapySession{}, s.transition(ctx, id, err)
	}

	slog.InfoContext(ctx, "therapy session accepted",
		"session_id", id,
		"therapist_id", therapistID)
	return session, nil
}

func (s *Service) Start(ctx context.Context, id int64, therapistID string) (model.TherapySession, error) {
	session, err := s.store.StartTherapySession(ctx, id, therapistID, s.now())
	if err != nil {
		return model.TherapySession{}, s.transition(ctx, id, err)
	}

	slog.InfoContext(ctx, "therapy session started", "session_id", id)
	s.notify.SessionStarted(ctx, session)
	return session, nil
}

// End ends a session. Ending an already ended session is not an error: the
// stored session is returned with changed == false, so two clients hitting
// zero at the same time both succeed but only one transition happens.
func (s *Service) End(ctx context.Context, id int64, actor Actor) (model.TherapySession, bool, error) {
	session, err := s.store.GetTherapySession(ctx, id)
	if err != nil {
		return model.TherapySession{}, false, err
	}
	if actor.Role != model.RoleAdmin && actor.ID != session.UserRef && actor.ID != session.TherapistID {
		return model.TherapySession{}, false, ErrNotParticipant
	}

	return s.end(ctx, session)
}

func (s *Service) end(ctx context.Context, session model.TherapySession) (model.TherapySession, bool, error) {
	if session.Status == model.TherapyEnded {
		return session, false, nil
	}

	ended, err := s.store.EndTherapySession(ctx, session.ID, s.now())
	if errors.Is(err, model.ErrConflict) {
		current, getErr := s.store.GetTherapySession(ctx, session.ID)
		return current, false, getErr
	}
	if err != nil {
		return model.TherapySession{}, false, err
	}

	slog.InfoContext(ctx, "therapy session ended", "session_id", session.ID)
	s.notify.SessionEnded(ctx, ended)
	return ended, true, nil
}

// SendMessage stores a message and hands it to the notifier. Messages are
// refused once a session ended; an in-progress session whose countdown ran
// out is ended on the spot.
func (s *Service) SendMessage(ctx context.Context, id int64, senderID string, senderType model.SenderType, content string) (model.TherapyMessage, error) {
	content = s.sanitizer.Sanitize(content)
	if content == "" || senderID == "" || !senderType.Valid() {
		return model.TherapyMessage{}, fmt.Errorf("%w: sender and content are required", ErrInvalidRequest)
	}

	session, err := s.store.GetTherapySession(ctx, id)
	if err != nil {
		return model.TherapyMessage{}, err
	}

	switch senderType {
	case model.SenderUser:
		if senderID != session.UserRef {
			return model.TherapyMessage{}, ErrNotParticipant
		}
	case model.SenderTherapist:
		if senderID != session.TherapistID {
			return model.TherapyMessage{}, ErrNotParticipant
		}
	}

	if session.Status == model.TherapyEnded {
		return model.TherapyMessage{}, ErrSessionEnded
	}
	if session.Status == model.TherapyInProgress && Remaining(session, s.now()) == 0 {
		if _, _, err := s.end(ctx, session); err != nil {
			return model.TherapyMessage{}, err
		}
		return model.TherapyMessage{}, ErrSessionEnded
	}

	msg, err := s.store.CreateTherapyMessage(ctx, model.TherapyMessage{
		SessionID:  id,
		SenderID:   senderID,
		SenderType: senderType,
		Content:    content,
		CreatedAt:  s.now(),
	})
	if errors.Is(err, model.ErrConflict) {
		return model.TherapyMessage{}, ErrSessionEnded
	}
	if err != nil {
		return model.TherapyMessage{}, fmt.Errorf("failed to store therapy message: %w", err)
	}

	s.notify.MessageCreated(ctx, msg)
	return msg, nil
}

func (s *Service) Messages(ctx context.Context, id int64, actor Actor) ([]model.TherapyMessage, error) {
	session, err := s.store.GetTherapySession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAccess(session, actor) {
		return nil, ErrNotParticipant
	}
	return s.store.ListTherapyMessages(ctx, id)
}

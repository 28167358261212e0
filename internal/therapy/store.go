package therapy

import (
	"context"
	"time"

	"github.com/johndosdos/haven/internal/model"
)

// Store persists therapy sessions and their messages. State transitions are
// conditional: they return model.ErrConflict when the session is not in the
// expected state, so two concurrent callers can never both win.
type Store interface {
	CreateTherapySession(ctx context.Context, s model.TherapySession) (model.TherapySession, error)
	GetTherapySession(ctx context.Context, id int64) (model.TherapySession, error)
	ListTherapySessionsByStatus(ctx context.Context, status model.TherapyStatus) ([]model.TherapySession, error)
	ListUserTherapySessions(ctx context.Context, userRef string) ([]model.TherapySession, error)
	ListTherapistSessions(ctx context.Context, therapistID string) ([]model.TherapySession, error)

	// AcceptTherapySession moves requested -> accepted.
	AcceptTherapySession(ctx context.Context, id int64, therapistID string, at time.Time) (model.TherapySession, error)
	// StartTherapySession moves accepted -> in_progress for the accepting
	// therapist.
	StartTherapySession(ctx context.Context, id int64, therapistID string, at time.Time) (model.TherapySession, error)
	// EndTherapySession moves any non-ended session to ended and records the
	// actual duration in whole minutes when the session had started.
	EndTherapySession(ctx context.Context, id int64, at time.Time) (model.TherapySession, error)

	// CreateTherapyMessage returns model.ErrConflict once the session has
	// ended.
	CreateTherapyMessage(ctx context.Context, msg model.TherapyMessage) (model.TherapyMessage, error)
	ListTherapyMessages(ctx context.Context, sessionID int64) ([]model.TherapyMessage, error)
}

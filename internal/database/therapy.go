package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/johndosdos/haven/internal/model"
)

const therapyColumns = `id, user_session_id, user_email, COALESCE(therapist_id, ''), status,
scheduled_duration, created_at, accepted_at, started_at, ended_at, actual_duration`

func scanTherapySession(row pgx.Row) (model.TherapySession, error) {
	var s model.TherapySession
	err := row.Scan(&s.ID, &s.UserRef, &s.UserEmail, &s.TherapistID, &s.Status,
		&s.ScheduledDuration, &s.CreatedAt, &s.AcceptedAt, &s.StartedAt, &s.EndedAt, &s.ActualDuration)
	return s, err
}

func collectTherapySessions(rows pgx.Rows, err error) ([]model.TherapySession, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TherapySession{}
	for rows.Next() {
		s, err := scanTherapySession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const createTherapySession = `INSERT INTO therapy_sessions (user_session_id, user_email, status, scheduled_duration, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + therapyColumns

func (q *Queries) CreateTherapySession(ctx context.Context, s model.TherapySession) (model.TherapySession, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return scanTherapySession(q.db.QueryRow(ctx, createTherapySession,
		s.UserRef, s.UserEmail, s.Status, s.ScheduledDuration, s.CreatedAt))
}

const getTherapySession = `SELECT ` + therapyColumns + ` FROM therapy_sessions WHERE id = $1`

func (q *Queries) GetTherapySession(ctx context.Context, id int64) (model.TherapySession, error) {
	s, err := scanTherapySession(q.db.QueryRow(ctx, getTherapySession, id))
	return s, notFound(err)
}

const listTherapySessionsByStatus = `SELECT ` + therapyColumns + ` FROM therapy_sessions
WHERE status = $1 ORDER BY id ASC`

func (q *Queries) ListTherapySessionsByStatus(ctx context.Context, status model.TherapyStatus) ([]model.TherapySession, error) {
	return collectTherapySessions(q.db.Query(ctx, listTherapySessionsByStatus, status))
}

const listUserTherapySessions = `SELECT ` + therapyColumns + ` FROM therapy_sessions
WHERE user_session_id = $1 ORDER BY id DESC`

func (q *Queries) ListUserTherapySessions(ctx context.Context, userRef string) ([]model.TherapySession, error) {
	return collectTherapySessions(q.db.Query(ctx, listUserTherapySessions, userRef))
}

const listTherapistSessions = `SELECT ` + therapyColumns + ` FROM therapy_sessions
WHERE therapist_id = $1 ORDER BY id DESC`

func (q *Queries) ListTherapistSessions(ctx context.Context, therapistID string) ([]model.TherapySession, error) {
	return collectTherapySessions(q.db.Query(ctx, listTherapistSessions, therapistID))
}

// transition runs a conditional UPDATE ... RETURNING. No returned row means
// either the session does not exist or it was not in the expected state.
func (q *Queries) transition(ctx context.Context, id int64, sql string, args ...any) (model.TherapySession, error) {
	s, err := scanTherapySession(q.db.QueryRow(ctx, sql, args...))
	if !errors.Is(err, pgx.ErrNoRows) {
		return s, err
	}
	if _, err := q.GetTherapySession(ctx, id); err != nil {
		return model.TherapySession{}, err
	}
	return model.TherapySession{}, model.ErrConflict
}

const acceptTherapySession = `UPDATE therapy_sessions
SET status = 'accepted', therapist_id = $2, accepted_at = $3
WHERE id = $1 AND status = 'requested'
RETURNING ` + therapyColumns

func (q *Queries) AcceptTherapySession(ctx context.Context, id int64, therapistID string, at time.Time) (model.TherapySession, error) {
	return q.transition(ctx, id, acceptTherapySession, id, therapistID, at)
}

const startTherapySession = `UPDATE therapy_sessions
SET status = 'in_progress', started_at = $3
WHERE id = $1 AND status = 'accepted' AND therapist_id = $2
RETURNING ` + therapyColumns

func (q *Queries) StartTherapySession(ctx context.Context, id int64, therapistID string, at time.Time) (model.TherapySession, error) {
	return q.transition(ctx, id, startTherapySession, id, therapistID, at)
}

const endTherapySession = `UPDATE therapy_sessions
SET status = 'ended', ended_at = $2,
    actual_duration = CASE WHEN started_at IS NULL THEN NULL
        ELSE floor(extract(epoch FROM ($2 - started_at)) / 60)::INTEGER END
WHERE id = $1 AND status <> 'ended'
RETURNING ` + therapyColumns

func (q *Queries) EndTherapySession(ctx context.Context, id int64, at time.Time) (model.TherapySession, error) {
	return q.transition(ctx, id, endTherapySession, id, at)
}

const therapyMessageColumns = `id, session_id, sender_id, sender_type, content, created_at`

func scanTherapyMessage(row pgx.Row) (model.TherapyMessage, error) {
	var m model.TherapyMessage
	err := row.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.SenderType, &m.Content, &m.CreatedAt)
	return m, err
}

// createTherapyMessage only inserts while the session is not ended. FOR SHARE
// makes a concurrent end wait for the insert, or the insert see the end.
const createTherapyMessage = `INSERT INTO therapy_messages (session_id, sender_id, sender_type, content, created_at)
SELECT $1, $2, $3, $4, $5
WHERE EXISTS (
    SELECT 1 FROM therapy_sessions WHERE id = $1 AND status <> 'ended' FOR SHARE
)
RETURNING ` + therapyMessageColumns

// CreateTherapyMessage returns model.ErrConflict when the session has ended.
func (q *Queries) CreateTherapyMessage(ctx context.Context, msg model.TherapyMessage) (model.TherapyMessage, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m, err := scanTherapyMessage(q.db.QueryRow(ctx, createTherapyMessage,
		msg.SessionID, msg.SenderID, msg.SenderType, msg.Content, msg.CreatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := q.GetTherapySession(ctx, msg.SessionID); err != nil {
			return model.TherapyMessage{}, err
		}
		return model.TherapyMessage{}, model.ErrConflict
	}
	return m, err
}

const listTherapyMessages = `SELECT ` + therapyMessageColumns + ` FROM therapy_messages
WHERE session_id = $1 ORDER BY id ASC`

func (q *Queries) ListTherapyMessages(ctx context.Context, sessionID int64) ([]model.TherapyMessage, error) {
	rows, err := q.db.Query(ctx, listTherapyMessages, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TherapyMessage{}
	for rows.Next() {
		m, err := scanTherapyMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/johndosdos/haven/internal/model"
)

const createGroup = `INSERT INTO chat_groups (group_code, max_members)
VALUES ($1, $2)
RETURNING id, group_code, max_members, is_active, created_at`

func (q *Queries) CreateGroup(ctx context.Context, code string, maxMembers int) (model.ChatGroup, error) {
	var g model.ChatGroup
	err := q.db.QueryRow(ctx, createGroup, code, maxMembers).
		Scan(&g.ID, &g.Code, &g.MaxMembers, &g.Active, &g.CreatedAt)
	return g, err
}

const deactivateGroup = `UPDATE chat_groups SET is_active = FALSE WHERE id = $1`

func (q *Queries) DeactivateGroup(ctx context.Context, groupID int64) error {
	return requireRow(q.db.Exec(ctx, deactivateGroup, groupID))
}

const messageColumns = `id, group_id, session_id, username, content, flagged, violations, created_at`

func scanMessage(row pgx.Row) (model.ChatMessage, error) {
	var m model.ChatMessage
	err := row.Scan(&m.ID, &m.GroupID, &m.SessionID, &m.Username, &m.Content, &m.Flagged, &m.Violations, &m.CreatedAt)
	if len(m.Violations) == 0 {
		m.Violations = nil
	}
	return m, err
}

func collectMessages(rows pgx.Rows, err error) ([]model.ChatMessage, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const createMessage = `INSERT INTO chat_messages (group_id, session_id, username, content, flagged, violations, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + messageColumns

func (q *Queries) CreateMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	violations := msg.Violations
	if violations == nil {
		violations = []string{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return scanMessage(q.db.QueryRow(ctx, createMessage,
		msg.GroupID, msg.SessionID, msg.Username, msg.Content, msg.Flagged, violations, msg.CreatedAt))
}

const listRecentMessages = `SELECT ` + messageColumns + ` FROM (
    SELECT ` + messageColumns + ` FROM chat_messages
    WHERE group_id = $1
    ORDER BY id DESC
    LIMIT $2
) recent ORDER BY id ASC`

func (q *Queries) ListRecentMessages(ctx context.Context, groupID int64, limit int) ([]model.ChatMessage, error) {
	return collectMessages(q.db.Query(ctx, listRecentMessages, groupID, limit))
}

const listMessagesSince = `SELECT ` + messageColumns + ` FROM chat_messages
WHERE group_id = $1 AND id > $2
ORDER BY id ASC`

func (q *Queries) ListMessagesSince(ctx context.Context, groupID, sinceID int64) ([]model.ChatMessage, error) {
	return collectMessages(q.db.Query(ctx, listMessagesSince, groupID, sinceID))
}

const flagColumns = `user_session_id, flag_count, last_flagged_at, is_banned, banned_at, ban_reason`

func scanFlag(row pgx.Row) (model.UserFlag, error) {
	var f model.UserFlag
	err := row.Scan(&f.SessionID, &f.FlagCount, &f.LastFlaggedAt, &f.Banned, &f.BannedAt, &f.BanReason)
	return f, err
}

const incrementFlag = `INSERT INTO user_flags (user_session_id, flag_count, last_flagged_at)
VALUES ($1, 1, $2)
ON CONFLICT (user_session_id) DO UPDATE
SET flag_count = user_flags.flag_count + 1, last_flagged_at = EXCLUDED.last_flagged_at
RETURNING ` + flagColumns

const banFlag = `UPDATE user_flags
SET is_banned = TRUE, banned_at = $2, ban_reason = $3
WHERE user_session_id = $1
RETURNING ` + flagColumns

const insertBanned = `INSERT INTO banned_users (user_session_id, reason, banned_by, banned_at)
VALUES ($1, $2, 'System', $3)
ON CONFLICT (user_session_id) DO UPDATE
SET reason = EXCLUDED.reason, banned_at = EXCLUDED.banned_at`

func (q *Queries) FlagSession(ctx context.Context, sessionID, reason string, threshold int, at time.Time) (model.UserFlag, error) {
	var flag model.UserFlag
	err := pgx.BeginFunc(ctx, q.db, func(tx pgx.Tx) error {
		var err error
		flag, err = scanFlag(tx.QueryRow(ctx, incrementFlag, sessionID, at))
		if err != nil {
			return err
		}
		if flag.Banned || flag.FlagCount < threshold {
			return nil
		}

		flag, err = scanFlag(tx.QueryRow(ctx, banFlag, sessionID, at, reason))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insertBanned, sessionID, reason, at)
		return err
	})
	return flag, err
}

const getFlag = `SELECT ` + flagColumns + ` FROM user_flags WHERE user_session_id = $1`

func (q *Queries) GetFlag(ctx context.Context, sessionID string) (model.UserFlag, error) {
	f, err := scanFlag(q.db.QueryRow(ctx, getFlag, sessionID))
	return f, notFound(err)
}

const listFlagged = `SELECT ` + flagColumns + ` FROM user_flags
WHERE flag_count > 0
ORDER BY flag_count DESC, user_session_id`

func (q *Queries) ListFlagged(ctx context.Context) ([]model.UserFlag, error) {
	rows, err := q.db.Query(ctx, listFlagged)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.UserFlag{}
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const listBanned = `SELECT user_session_id, reason, banned_by, banned_at
FROM banned_users ORDER BY banned_at DESC`

func (q *Queries) ListBanned(ctx context.Context) ([]model.BannedUser, error) {
	rows, err := q.db.Query(ctx, listBanned)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BannedUser{}
	for rows.Next() {
		var b model.BannedUser
		if err := rows.Scan(&b.SessionID, &b.Reason, &b.BannedBy, &b.BannedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const unbanFlag = `UPDATE user_flags
SET is_banned = FALSE, banned_at = NULL, ban_reason = '', flag_count = 0
WHERE user_session_id = $1`

const deleteBanned = `DELETE FROM banned_users WHERE user_session_id = $1`

func (q *Queries) Unban(ctx context.Context, sessionID string) error {
	return pgx.BeginFunc(ctx, q.db, func(tx pgx.Tx) error {
		if err := requireRow(tx.Exec(ctx, unbanFlag, sessionID)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, deleteBanned, sessionID)
		return err
	})
}

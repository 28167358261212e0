package model

import "time"

// ChatSession is one anonymous participant's identity for the duration of a
// chat connection.
type ChatSession struct {
	ID        string    `json:"session_id"`
	Username  string    `json:"username"`
	GroupID   *int64    `json:"group_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatGroup is a room of 2 to MaxMembers anonymous participants.
type ChatGroup struct {
	ID         int64     `json:"id"`
	Code       string    `json:"group_code"`
	MaxMembers int       `json:"max_members"`
	Active     bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserFlag is the moderation ledger entry for a chat session.
type UserFlag struct {
	SessionID     string     `json:"user_session_id"`
	FlagCount     int        `json:"flag_count"`
	LastFlaggedAt *time.Time `json:"last_flagged_at"`
	Banned        bool       `json:"is_banned"`
	BannedAt      *time.Time `json:"banned_at"`
	BanReason     string     `json:"ban_reason,omitempty"`
}

type BannedUser struct {
	SessionID string    `json:"user_session_id"`
	Reason    string    `json:"reason"`
	BannedBy  string    `json:"banned_by"`
	BannedAt  time.Time `json:"banned_at"`
}

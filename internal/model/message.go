// Package model defines data structure.
package model

import (
	"time"
)

// ChatMessage represents a message posted to an anonymous chat group. It is
// used for storage, broker payloads and websocket communication.
type ChatMessage struct {
	ID         int64     `json:"id"`
	GroupID    int64     `json:"group_id"`
	SessionID  string    `json:"session_id"`
	Username   string    `json:"username"`
	Content    string    `json:"content"`
	Flagged    bool      `json:"flagged"`
	Violations []string  `json:"violations,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TherapyMessage is a message exchanged inside a therapy session.
type TherapyMessage struct {
	ID         int64      `json:"id"`
	SessionID  int64      `json:"session_id"`
	SenderID   string     `json:"sender_id"`
	SenderType SenderType `json:"sender_type"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}

type SenderType string

const (
	SenderUser      SenderType = "user"
	SenderTherapist SenderType = "therapist"
)

func (t SenderType) Valid() bool {
	return t == SenderUser || t == SenderTherapist
}

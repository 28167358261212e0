package chat

import (
	"context"
	"time"

	"github.com/johndosdos/haven/internal/model"
)

// Store persists groups, messages and the moderation ledger. Matching state
// (who is waiting, who sits in which group) lives in the Service.
type Store interface {
	CreateGroup(ctx context.Context, code string, maxMembers int) (model.ChatGroup, error)
	DeactivateGroup(ctx context.Context, groupID int64) error

	// CreateMessage stores msg and returns it with its store-assigned ID and
	// CreatedAt. IDs strictly increase.
	CreateMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error)
	// ListRecentMessages returns at most limit messages of a group, oldest first.
	ListRecentMessages(ctx context.Context, groupID int64, limit int) ([]model.ChatMessage, error)
	// ListMessagesSince returns the messages of a group with ID > sinceID,
	// oldest first.
	ListMessagesSince(ctx context.Context, groupID, sinceID int64) ([]model.ChatMessage, error)

	// FlagSession increments the flag count of a session and bans it once the
	// count reaches threshold, recording a BannedUser entry.
	FlagSession(ctx context.Context, sessionID, reason string, threshold int, at time.Time) (model.UserFlag, error)
	// GetFlag returns model.ErrNotFound when the session was never flagged.
	GetFlag(ctx context.Context, sessionID string) (model.UserFlag, error)
	ListFlagged(ctx context.Context) ([]model.UserFlag, error)
	ListBanned(ctx context.Context) ([]model.BannedUser, error)
	// Unban clears the ban and the flag count of a session.
	Unban(ctx context.Context, sessionID string) error
}

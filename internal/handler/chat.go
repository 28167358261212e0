package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/haven/internal/chat"
)

// ChatLeaver removes a session from chat and tells its group.
type ChatLeaver interface {
	LeaveChat(ctx context.Context, sessionID string) (chat.LeaveResult, error)
}

// ChatPoster seats sessions and posts their messages for clients that fall
// back to REST.
type ChatPoster interface {
	JoinChat(ctx context.Context, sessionID string) (chat.JoinResult, error)
	SendChatMessage(ctx context.Context, sessionID, content string) (chat.SendResult, error)
}

func writeBanned(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, map[string]any{
		"success": false,
		"error":   "User is banned from chat",
		"banned":  true,
	})
}

func CreateChatSession(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.CreateSession(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":         true,
			"user_session_id": sess.ID,
			"username":        sess.Username,
		})
	}
}

func ChatStatus(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Status(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": st})
	}
}

func LeaveChat(hub ChatLeaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SessionID string `json:"user_session_id"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		if body.SessionID == "" {
			writeError(w, http.StatusBadRequest, "User session ID is required")
			return
		}

		_, err := hub.LeaveChat(r.Context(), body.SessionID)
		if err != nil && !errors.Is(err, chat.ErrNotInGroup) {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Left chat"})
	}
}

// JoinChatGroup joins or creates a group for the session.
func JoinChatGroup(hub ChatPoster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SessionID string `json:"user_session_id"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		if body.SessionID == "" {
			writeError(w, http.StatusBadRequest, "User session ID is required")
			return
		}

		res, err := hub.JoinChat(r.Context(), body.SessionID)
		if errors.Is(err, chat.ErrBanned) {
			writeBanned(w)
			return
		}
		if err != nil {
			fail(w, r, err)
			return
		}

		data := map[string]any{
			"waiting":      res.Waiting,
			"username":     res.Session.Username,
			"is_new_group": res.IsNewGroup,
		}
		if res.Group != nil {
			data["group"] = res.Group
			data["messages"] = res.History
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
	}
}

// PostChatMessage sends a moderated message to the session's group.
func PostChatMessage(hub ChatPoster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SessionID string `json:"user_session_id"`
			Content   string `json:"content"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		if body.SessionID == "" || body.Content == "" {
			writeError(w, http.StatusBadRequest, "User session ID and content are required")
			return
		}

		res, err := hub.SendChatMessage(r.Context(), body.SessionID, body.Content)
		if errors.Is(err, chat.ErrBanned) {
			writeBanned(w)
			return
		}
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": res.Message,
			"banned":  res.Banned,
		})
	}
}

// Moderate analyses content without posting it.
func Moderate(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		if body.Content == "" {
			writeError(w, http.StatusBadRequest, "Content is required")
			return
		}

		verdict, censored, violations := svc.Moderate(body.Content)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":           true,
			"moderation_result": verdict,
			"censored_content":  censored,
			"violations":        violations,
		})
	}
}

func FlaggedUsers(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flagged, err := svc.Flagged(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "flagged_users": flagged})
	}
}

func BannedUsers(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		banned, err := svc.Banned(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "banned_users": banned})
	}
}

func UnbanUser(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body struct {
			SessionID string `json:"user_session_id"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		if body.SessionID == "" {
			writeError(w, http.StatusBadRequest, "User session ID is required")
			return
		}

		if err := svc.Unban(ctx, body.SessionID); err != nil {
			fail(w, r, err)
			return
		}

		if claims, err := claimsOf(r); err == nil {
			slog.InfoContext(ctx, "chat session unbanned",
				"session_id", body.SessionID,
				"by", claims.Subject)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "User unbanned successfully"})
	}
}

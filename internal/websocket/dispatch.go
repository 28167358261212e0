package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/johndosdos/haven/internal/broker"
	"github.com/johndosdos/haven/internal/chat"
	"github.com/johndosdos/haven/internal/event"
	"github.com/johndosdos/haven/internal/metrics"
	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/therapy"
)

const bannedMessage = "You have been banned from chat due to inappropriate messages."

// dispatch runs one client event. It is only called from the client's read
// goroutine, so events of one connection are handled in order.
func (h *Hub) dispatch(ctx context.Context, c *Client, t event.Type, payload any) {
	metrics.RecordEvent(string(t))

	switch p := payload.(type) {
	case *event.JoinChatPayload:
		h.joinChat(ctx, c, p.SessionID)
	case *event.SendMessagePayload:
		h.sendMessage(ctx, c, p)
	case *event.TypingPayload:
		h.typing(ctx, c, p)
	case *event.LeaveChatPayload:
		h.leaveChat(ctx, c, p.SessionID)
	case *event.JoinTherapyPayload:
		h.joinTherapy(ctx, c, p)
	case *event.SendTherapyMessagePayload:
		h.sendTherapyMessage(ctx, c, p)
	default:
		c.Send(event.ErrorEvent(event.CodeBadRequest, fmt.Sprintf("Unsupported event %q", t)))
	}
}

func (h *Hub) chatError(ctx context.Context, c *Client, err error) {
	switch {
	case errors.Is(err, chat.ErrUnknownSession):
		c.Send(event.ErrorEvent(event.CodeUnknownSession, "Unknown chat session. Create a new session first."))
	case errors.Is(err, chat.ErrBanned):
		c.Send(event.Must(event.Banned, event.BannedPayload{Message: bannedMessage}))
	case errors.Is(err, chat.ErrNotInGroup):
		c.Send(event.ErrorEvent(event.CodeNotInGroup, "You are not in a chat group."))
	case errors.Is(err, chat.ErrEmptyContent):
		c.Send(event.ErrorEvent(event.CodeBadRequest, "Message content is empty."))
	default:
		slog.ErrorContext(ctx, "chat operation failed", "error", err)
		c.Send(event.ErrorEvent(event.CodeInternal, "Something went wrong. Please try again."))
	}
}

// owns reports whether c joined with sessionID.
func (h *Hub) owns(c *Client, sessionID string) bool {
	if c.sessionID != sessionID {
		c.Send(event.ErrorEvent(event.CodeNotInGroup, "Join the chat with this session first."))
		return false
	}
	return true
}

func (h *Hub) joinChat(ctx context.Context, c *Client, sessionID string) {
	res, err := h.chat.Join(ctx, sessionID)
	if err != nil {
		h.chatError(ctx, c, err)
		return
	}

	if c.sessionID != "" && c.sessionID != sessionID {
		h.release(c.sessionID, c)
	}
	c.sessionID = sessionID
	h.bind(sessionID, c)

	if res.Waiting {
		c.Send(event.Must(event.WaitingForGroup, event.WaitingPayload{
			Message:  "Waiting for other users to join...",
			Username: res.Session.Username,
		}))
		return
	}

	if res.IsNewGroup {
		metrics.RecordGroupFormed()
	}
	c.Send(event.Must(event.JoinedGroup, event.JoinedGroupPayload{
		Group:      *res.Group,
		Username:   res.Session.Username,
		IsNewGroup: res.IsNewGroup,
	}))
	c.Send(event.Must(event.PreviousMessages, event.PreviousMessagesPayload{Messages: history(res.History)}))

	h.announcePlaced(ctx, sessionID, *res.Group, res.IsNewGroup, res.Placed, res.History)
}

// announcePlaced tells every newly seated session about its group and tells
// the rest of the group who joined. self already got its joined_group.
func (h *Hub) announcePlaced(ctx context.Context, self string, group model.ChatGroup, isNew bool, placed []chat.Placement, hist []model.ChatMessage) {
	for _, p := range placed {
		if p.SessionID != self {
			h.publish(ctx, broker.ToSession(p.SessionID, event.Must(event.JoinedGroup, event.JoinedGroupPayload{
				Group:      group,
				Username:   p.Username,
				IsNewGroup: isNew,
			})))
			h.publish(ctx, broker.ToSession(p.SessionID, event.Must(event.PreviousMessages, event.PreviousMessagesPayload{Messages: history(hist)})))
		}
		h.publish(ctx, broker.ToGroup(group.ID, event.Must(event.UserJoined, event.UserJoinedPayload{
			SessionID: p.SessionID,
			Username:  p.Username,
			Message:   p.Username + " joined the chat",
		})).Except(p.SessionID))
	}
}

func history(msgs []model.ChatMessage) []model.ChatMessage {
	if msgs == nil {
		return []model.ChatMessage{}
	}
	return msgs
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, p *event.SendMessagePayload) {
	if !h.owns(c, p.SessionID) {
		return
	}
	if c.messageLim != nil && !c.messageLim.Allow() {
		metrics.RecordRateLimited("ws")
		c.Send(event.ErrorEvent(event.CodeRateLimited, "You are sending messages too fast."))
		return
	}

	res, err := h.chat.Send(ctx, p.SessionID, p.Content)
	if err != nil {
		h.chatError(ctx, c, err)
		return
	}
	metrics.RecordChatMessage(res.Message.Flagged)

	h.publish(ctx, broker.ToGroup(res.Message.GroupID, event.Must(event.NewMessage, event.NewMessagePayload{Message: res.Message})))

	if res.Banned {
		metrics.RecordBan()
		c.Send(event.Must(event.Banned, event.BannedPayload{Message: bannedMessage}))
		h.unbind(p.SessionID, c)
		c.sessionID = ""
		if res.Left != nil {
			h.afterLeave(ctx, *res.Left)
		}
	}
}

func (h *Hub) typing(ctx context.Context, c *Client, p *event.TypingPayload) {
	if !h.owns(c, p.SessionID) {
		return
	}
	// Dropping a typing indicator is harmless, so no error is sent.
	if c.typingLim != nil && !c.typingLim.Allow() {
		metrics.RecordRateLimited("ws_typing")
		return
	}

	gid, username, err := h.chat.Typing(p.SessionID)
	if err != nil {
		h.chatError(ctx, c, err)
		return
	}
	h.publish(ctx, broker.ToGroup(gid, event.Must(event.UserTyping, event.UserTypingPayload{
		SessionID: p.SessionID,
		Username:  username,
		IsTyping:  p.IsTyping,
	})).Except(p.SessionID))
}

func (h *Hub) leaveChat(ctx context.Context, c *Client, sessionID string) {
	if !h.owns(c, sessionID) {
		return
	}

	res, err := h.chat.Leave(ctx, sessionID)
	if err != nil && !errors.Is(err, chat.ErrNotInGroup) {
		h.chatError(ctx, c, err)
		return
	}

	h.unbind(sessionID, c)
	c.sessionID = ""
	c.Send(event.Must(event.LeftChat, event.LeftChatPayload{Message: "You have left the chat."}))

	if err == nil {
		h.afterLeave(ctx, res)
	}
}

// afterLeave tells the group who left and seats refilled sessions.
func (h *Hub) afterLeave(ctx context.Context, res chat.LeaveResult) {
	if res.WasWaiting || res.GroupID == 0 {
		return
	}
	h.publish(ctx, broker.ToGroup(res.GroupID, event.Must(event.UserLeft, event.UserLeftPayload{
		Username: res.Username,
		Message:  res.Username + " left the chat",
	})))
	if res.Group != nil && len(res.Placed) > 0 {
		h.announcePlaced(ctx, "", *res.Group, false, res.Placed, res.History)
	}
}

func actorOf(c *Client) (therapy.Actor, bool) {
	if c.claims == nil {
		return therapy.Actor{}, false
	}
	return therapy.Actor{ID: c.claims.Subject, Role: c.claims.Role}, true
}

func (h *Hub) therapyError(ctx context.Context, c *Client, err error) {
	switch {
	case errors.Is(err, therapy.ErrSessionEnded):
		c.Send(event.ErrorEvent(event.CodeSessionEnded, "This therapy session has ended."))
	case errors.Is(err, therapy.ErrNotParticipant):
		c.Send(event.ErrorEvent(event.CodeUnauthorized, "You are not a participant of this therapy session."))
	case errors.Is(err, therapy.ErrInvalidRequest):
		c.Send(event.ErrorEvent(event.CodeBadRequest, "Sender and content are required."))
	case errors.Is(err, model.ErrNotFound):
		c.Send(event.ErrorEvent(event.CodeBadRequest, "Therapy session not found."))
	default:
		slog.ErrorContext(ctx, "therapy operation failed", "error", err)
		c.Send(event.ErrorEvent(event.CodeInternal, "Something went wrong. Please try again."))
	}
}

func (h *Hub) joinTherapy(ctx context.Context, c *Client, p *event.JoinTherapyPayload) {
	actor, ok := actorOf(c)
	if !ok || (p.UserID != actor.ID && actor.Role != model.RoleAdmin) {
		c.Send(event.ErrorEvent(event.CodeUnauthorized, "A valid access token is required to join a therapy session."))
		return
	}

	session, err := h.therapy.Get(ctx, p.SessionID)
	if err != nil {
		h.therapyError(ctx, c, err)
		return
	}
	if !therapy.CanAccess(session, actor) {
		h.therapyError(ctx, c, therapy.ErrNotParticipant)
		return
	}
	if session.Status == model.TherapyEnded {
		c.Send(event.Must(event.TherapySessionEnded, event.TherapySessionPayload{Session: session}))
		return
	}

	h.mu.Lock()
	room, ok := h.rooms[session.ID]
	if !ok {
		room = make(map[*Client]therapy.Actor)
		h.rooms[session.ID] = room
	}
	room[c] = actor
	h.mu.Unlock()

	senderType := model.SenderUser
	if actor.Role == model.RoleTherapist {
		senderType = model.SenderTherapist
	}
	h.publish(ctx, broker.ToTherapy(session.ID, event.Must(event.UserJoinedTherapy, event.UserJoinedTherapyPayload{
		UserID:     actor.ID,
		SenderType: senderType,
	})).Except(actor.ID))

	// A late joiner derives the countdown from started_at.
	if session.Status == model.TherapyInProgress {
		c.Send(event.Must(event.TherapySessionStarted, event.TherapySessionPayload{Session: session}))
	}
}

func (h *Hub) sendTherapyMessage(ctx context.Context, c *Client, p *event.SendTherapyMessagePayload) {
	actor, ok := actorOf(c)
	if !ok || p.SenderID != actor.ID {
		c.Send(event.ErrorEvent(event.CodeUnauthorized, "Messages can only be sent as yourself."))
		return
	}
	if c.messageLim != nil && !c.messageLim.Allow() {
		metrics.RecordRateLimited("ws")
		c.Send(event.ErrorEvent(event.CodeRateLimited, "You are sending messages too fast."))
		return
	}

	// The message reaches the sender through the room broadcast only.
	if _, err := h.therapy.SendMessage(ctx, p.SessionID, p.SenderID, p.SenderType, p.Content); err != nil {
		h.therapyError(ctx, c, err)
	}
}

package chatclient

import (
	"context"
	"errors"
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

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Waiting
	InGroup
	Banned
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Waiting:
		return "waiting"
	case InGroup:
		return "in_group"
	case Banned:
		return "banned"
	}
	return "unknown"
}

type Options struct {
	// URL is the realtime endpoint, for example ws://localhost:8080/ws.
	URL       string
	SessionID string
	// API is used for ban details and to fill message gaps after a
	// reconnect. It may be nil.
	API        *API
	Backoff    func() retry.Backoff
	TypingIdle time.Duration
	// OnEvent and OnState are called from the connection goroutine.
	OnEvent func(t event.Type, payload any)
	OnState func(State)
}

// Chat is one anonymous session's realtime connection. Run drives the state
// machine Disconnected -> Connecting -> Connected -> Waiting/InGroup and
// reconnects with backoff when the transport drops, rejoining so the server
// replays the group history.
type Chat struct {
	url       string
	sessionID string
	api       *API
	backoff   func() retry.Backoff
	onEvent   func(event.Type, any)
	onState   func(State)
	typing    *Typing

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	left     bool
	username string
	group    *model.ChatGroup
	messages []model.ChatMessage
	lastID   int64
	ban      *BannedError
	lastErr  *event.ErrorPayload
}

func NewChat(opts Options) (*Chat, error) {
	if opts.URL == "" {
		return nil, &ValidationError{Field: "url", Message: "is required"}
	}
	if opts.SessionID == "" {
		return nil, &ValidationError{Field: "session_id", Message: "is required"}
	}

	c := &Chat{
		url:       opts.URL,
		sessionID: opts.SessionID,
		api:       opts.API,
		backoff:   opts.Backoff,
		onEvent:   opts.OnEvent,
		onState:   opts.OnState,
	}
	if c.backoff == nil {
		c.backoff = DefaultBackoff
	}
	if c.onEvent == nil {
		c.onEvent = func(event.Type, any) {}
	}
	if c.onState == nil {
		c.onState = func(State) {}
	}
	c.typing = NewTyping(opts.TypingIdle, c.emitTyping)
	return c, nil
}

func (c *Chat) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed {
		c.onState(s)
	}
}

// Run connects and serves the chat until the session leaves, is banned or
// ctx ends. A dropped connection is retried. Run returns nil after Leave and
// a *BannedError after a ban.
func (c *Chat) Run(ctx context.Context) error {
	defer c.typing.Reset()

	for {
		c.setState(Connecting)
		conn, err := dial(ctx, c.url, c.backoff())
		if err != nil {
			c.setState(Disconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		err = c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		state, left, ban := c.state, c.left, c.ban
		c.mu.Unlock()

		switch {
		case state == Banned:
			conn.Close(websocket.StatusNormalClosure, "banned")
			return ban
		case left:
			conn.Close(websocket.StatusNormalClosure, "left chat")
			c.setState(Disconnected)
			return nil
		case ctx.Err() != nil:
			conn.CloseNow()
			c.setState(Disconnected)
			return ctx.Err()
		}

		conn.CloseNow()
		c.typing.Reset()
		c.setState(Disconnected)
		slog.InfoContext(ctx, "chat connection lost, reconnecting",
			"session_id", c.sessionID,
			"error", err)
	}
}

func (c *Chat) serve(ctx context.Context, conn *websocket.Conn) error {
	c.setState(Connected)
	if err := write(ctx, conn, event.JoinChat, event.JoinChatPayload{SessionID: c.sessionID}); err != nil {
		return err
	}

	for {
		t, payload, err := read(ctx, conn)
		if err != nil {
			return err
		}
		if c.handle(ctx, t, payload) {
			return nil
		}
	}
}

// handle applies one server event and reports whether the connection is
// finished.
func (c *Chat) handle(ctx context.Context, t event.Type, payload any) bool {
	done := false

	switch p := payload.(type) {
	case *event.WaitingPayload:
		c.mu.Lock()
		c.username = p.Username
		c.mu.Unlock()
		c.setState(Waiting)

	case *event.JoinedGroupPayload:
		c.mu.Lock()
		if c.group != nil && c.group.ID != p.Group.ID {
			c.messages = nil
			c.lastID = 0
		}
		group := p.Group
		c.group = &group
		c.username = p.Username
		c.mu.Unlock()
		c.setState(InGroup)

	case *event.PreviousMessagesPayload:
		c.mu.Lock()
		last := c.lastID
		var gid int64
		if c.group != nil {
			gid = c.group.ID
		}
		c.merge(p.Messages)
		c.mu.Unlock()

		// The replay is bounded; when it does not reach back to what we
		// already had, fetch the gap.
		if last > 0 && gid > 0 && c.api != nil && (len(p.Messages) == 0 || p.Messages[0].ID > last) {
			missed, err := c.api.Messages(ctx, gid, c.sessionID, last)
			if err != nil {
				slog.WarnContext(ctx, "failed to fill message gap", "group_id", gid, "error", err)
			} else {
				c.mu.Lock()
				c.merge(missed)
				c.mu.Unlock()
			}
		}

	case *event.NewMessagePayload:
		c.mu.Lock()
		c.merge([]model.ChatMessage{p.Message})
		c.mu.Unlock()

	case *event.BannedPayload:
		ban := &BannedError{Message: p.Message}
		if c.api != nil {
			if st, err := c.api.ChatStatus(ctx, c.sessionID); err == nil && st.BanInfo != nil {
				ban.Reason = st.BanInfo.BanReason
				ban.BannedAt = st.BanInfo.BannedAt
			}
		}
		c.mu.Lock()
		c.ban = ban
		c.group = nil
		c.mu.Unlock()
		c.typing.Reset()
		c.setState(Banned)
		done = true

	case *event.LeftChatPayload:
		c.mu.Lock()
		c.left = true
		c.group = nil
		c.mu.Unlock()
		c.setState(Disconnected)
		done = true

	case *event.ErrorPayload:
		c.mu.Lock()
		errCopy := *p
		c.lastErr = &errCopy
		c.mu.Unlock()
		if p.Code == event.CodeWaitTimeout {
			c.setState(Connected)
		}
	}

	c.onEvent(t, payload)
	return done
}

// merge must be called with mu held.
func (c *Chat) merge(in []model.ChatMessage) {
	c.messages = mergeByID(c.messages, in, func(m model.ChatMessage) int64 { return m.ID })
	if n := len(c.messages); n > 0 {
		c.lastID = max(c.lastID, c.messages[n-1].ID)
	}
}

func (c *Chat) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Join asks to be matched again, for example after a wait timeout.
func (c *Chat) Join(ctx context.Context) error {
	return write(ctx, c.currentConn(), event.JoinChat, event.JoinChatPayload{SessionID: c.sessionID})
}

func (c *Chat) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return &ValidationError{Field: "content", Message: "message cannot be empty"}
	}

	c.mu.Lock()
	state, ban, conn := c.state, c.ban, c.conn
	c.mu.Unlock()

	switch state {
	case Banned:
		return ban
	case InGroup:
	default:
		return ErrNotInGroup
	}

	c.typing.Stop()
	return write(ctx, conn, event.SendMessage, event.SendMessagePayload{
		SessionID: c.sessionID,
		Content:   content,
	})
}

// Keystroke feeds the typing debouncer. It is a no-op outside a group.
func (c *Chat) Keystroke() {
	if c.State() != InGroup {
		return
	}
	c.typing.Keystroke()
}

func (c *Chat) emitTyping(isTyping bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := write(ctx, c.currentConn(), event.Typing, event.TypingPayload{
		SessionID: c.sessionID,
		IsTyping:  isTyping,
	})
	if err != nil {
		slog.Debug("failed to send typing indicator", "error", err)
	}
}

// Leave emits leave_chat and lets Run return once the server confirms.
func (c *Chat) Leave(ctx context.Context) error {
	c.typing.Reset()

	c.mu.Lock()
	c.left = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.setState(Disconnected)
		return nil
	}

	err := write(ctx, conn, event.LeaveChat, event.LeaveChatPayload{SessionID: c.sessionID})
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "left chat")
	}
	return err
}

func (c *Chat) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Chat) SessionID() string { return c.sessionID }

func (c *Chat) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Chat) Group() *model.ChatGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group == nil {
		return nil
	}
	g := *c.group
	return &g
}

// Messages returns the group messages received so far, sorted by id.
func (c *Chat) Messages() []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// LastMessageID is the highest message id seen, used to detect gaps.
func (c *Chat) LastMessageID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

// Ban returns the ban details once the session was banned.
func (c *Chat) Ban() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ban == nil {
		return nil
	}
	return c.ban
}

// LastError is the most recent error event from the server.
func (c *Chat) LastError() *event.ErrorPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsBanned reports whether err is a chat ban.
func IsBanned(err error) bool {
	var b *BannedError
	return errors.As(err, &b)
}

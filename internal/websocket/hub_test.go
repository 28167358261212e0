package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/haven/internal/auth"
	"github.com/johndosdos/haven/internal/broker"
	"github.com/johndosdos/haven/internal/chat"
	"github.com/johndosdos/haven/internal/event"
	"github.com/johndosdos/haven/internal/memstore"
	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/therapy"
)

const testSecret = "test-secret"

type env struct {
	t       *testing.T
	store   *memstore.Store
	chat    *chat.Service
	therapy *therapy.Service
	hub     *Hub
	url     string
}

func names(list ...string) func() string {
	i := 0
	return func() string {
		n := list[i%len(list)]
		i++
		return n
	}
}

func newEnv(t *testing.T, chatCfg chat.Config, hubCfg Config, usernames ...string) *env {
	t.Helper()

	if len(usernames) == 0 {
		usernames = []string{"BraveFox42", "CalmOwl17", "KindBear33"}
	}

	store := memstore.New()
	chatSvc := chat.NewService(store, chatCfg, chat.WithUsernames(names(usernames...)))
	therapySvc := therapy.NewService(store)
	hub := NewHub(chatSvc, therapySvc, broker.NewLocal(), hubCfg)
	therapySvc.SetNotifier(hub)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var claims *auth.Claims
		if token := r.URL.Query().Get("token"); token != "" {
			c, err := auth.ValidateJWT(token, testSecret)
			if err != nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			claims = c
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn, claims)
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})

	return &env{
		t:       t,
		store:   store,
		chat:    chatSvc,
		therapy: therapySvc,
		hub:     hub,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

type conn struct {
	t  *testing.T
	ws *websocket.Conn
}

func (e *env) dial(token string) *conn {
	e.t.Helper()

	u := e.url
	if token != "" {
		u += "?token=" + token
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, u, nil)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { ws.CloseNow() })

	c := &conn{t: e.t, ws: ws}
	c.expect(event.Connected)
	return c
}

func (c *conn) send(t event.Type, payload any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(c.t, wsjson.Write(ctx, c.ws, event.Must(t, payload)))
}

func (c *conn) sendRaw(p string) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(c.t, c.ws.Write(ctx, websocket.MessageText, []byte(p)))
}

// expect reads events until one of type want arrives and decodes it.
func (c *conn) expect(want event.Type) any {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		_, p, err := c.ws.Read(ctx)
		require.NoError(c.t, err, "waiting for %s", want)
		env, payload, err := event.Decode(p)
		require.NoError(c.t, err)
		if env.Type == want {
			return payload
		}
	}
}

// next returns the next event, whatever its type.
func (c *conn) next() (event.Type, any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, p, err := c.ws.Read(ctx)
	require.NoError(c.t, err)
	env, payload, err := event.Decode(p)
	require.NoError(c.t, err)
	return env.Type, payload
}

func (e *env) session() string {
	e.t.Helper()
	s, err := e.chat.CreateSession(context.Background())
	require.NoError(e.t, err)
	return s.ID
}

// group seats two sessions together and drains their join events.
func (e *env) group() (*conn, string, *conn, string) {
	e.t.Helper()

	a, aID := e.dial(""), e.session()
	b, bID := e.dial(""), e.session()

	a.send(event.JoinChat, event.JoinChatPayload{SessionID: aID})
	a.expect(event.WaitingForGroup)
	b.send(event.JoinChat, event.JoinChatPayload{SessionID: bID})
	b.expect(event.JoinedGroup)
	b.expect(event.PreviousMessages)
	a.expect(event.JoinedGroup)
	a.expect(event.PreviousMessages)
	a.expect(event.UserJoined)
	b.expect(event.UserJoined)
	return a, aID, b, bID
}

func TestChatEndToEnd(t *testing.T) {
	e := newEnv(t, chat.DefaultConfig(), DefaultConfig())
	ctx := context.Background()

	// Earlier groups exist, so the new one gets id 7.
	for i := range 6 {
		_, err := e.store.CreateGroup(ctx, "old-"+string(rune('a'+i)), 5)
		require.NoError(t, err)
	}

	first, firstID := e.dial(""), e.session()
	second, secondID := e.dial(""), e.session()

	first.send(event.JoinChat, event.JoinChatPayload{SessionID: firstID})
	waiting := first.expect(event.WaitingForGroup).(*event.WaitingPayload)
	assert.Equal(t, "BraveFox42", waiting.Username)

	second.send(event.JoinChat, event.JoinChatPayload{SessionID: secondID})
	second.expect(event.JoinedGroup)

	joined := first.expect(event.JoinedGroup).(*event.JoinedGroupPayload)
	assert.Equal(t, int64(7), joined.Group.ID)
	assert.Equal(t, "BraveFox42", joined.Username)
	assert.True(t, joined.IsNewGroup)
	prev := first.expect(event.PreviousMessages).(*event.PreviousMessagesPayload)
	assert.Empty(t, prev.Messages)

	first.send(event.SendMessage, event.SendMessagePayload{SessionID: firstID, Content: "hello"})

	msg := first.expect(event.NewMessage).(*event.NewMessagePayload)
	assert.Equal(t, "BraveFox42", msg.Message.Username)
	assert.Equal(t, "hello", msg.Message.Content)

	other := second.expect(event.NewMessage).(*event.NewMessagePayload)
	assert.Equal(t, msg.Message.ID, other.Message.ID)

	// Exactly one broadcast: the next event the sender sees is the reply to a
	// later action, not a duplicate.
	first.send(event.LeaveChat, event.LeaveChatPayload{SessionID: firstID})
	typ, _ := first.next()
	assert.Equal(t, event.LeftChat, typ)
}

func TestBadFramesKeepConnectionOpen(t *testing.T) {
	e := newEnv(t, chat.DefaultConfig(), DefaultConfig())
	c := e.dial("")

	tests := []struct {
		name  string
		frame string
	}{
		{"not_json", "hello"},
		{"unknown_type", `{"type":"explode","data":{}}`},
		{"unknown_field", `{"type":"join_chat","data":{"session_id":"x","extra":1}}`},
		{"missing_session", `{"type":"join_chat","data":{"session_id":""}}`},
		{"server_event", `{"type":"banned","data":{"message":"no"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.sendRaw(tt.frame)
			errEvent := c.expect(event.Error).(*event.ErrorPayload)
			assert.Equal(t, event.CodeBadRequest, errEvent.Code)
		})
	}

	c.send(event.JoinChat, event.JoinChatPayload{SessionID: "does-not-exist"})
	errEvent := c.expect(event.Error).(*event.ErrorPayload)
	assert.Equal(t, event.CodeUnknownSession, errEvent.Code)
}

func TestSendRequiresJoin(t *testing.T) {
	e := newEnv(t, chat.DefaultConfig(), DefaultConfig())
	c := e.dial("")

	c.send(event.SendMessage, event.SendMessagePayload{SessionID: e.session(), Content: "hi"})
	errEvent := c.expect(event.Error).(*event.ErrorPayload)
	assert.Equal(t, event.CodeNotInGroup, errEvent.Code)
}

func TestTypingExcludesSender(t *testing.T) {
	e := newEnv(t, chat.DefaultConfig(), DefaultConfig())
	a, aID, b, _ := e.group()

	a.send(event.Typing, event.TypingPayload{SessionID: aID, IsTyping: true})
	typing := b.expect(event.UserTyping).(*event.UserTypingPayload)
	assert.Equal(t, "BraveFox42", typing.Username)
	assert.True(t, typing.IsTyping)

	// The sender's next event is its own message, not its typing indicator.
	a.send(event.SendMessage, event.SendMessagePayload{SessionID: aID, Content: "hi"})
	typ, _ := a.next()
	assert.Equal(t, event.NewMessage, typ)
}

func TestResumeAfterReconnect(t *testing.T) {
	e := newEnv(t, chat.DefaultConfig(), DefaultConfig())
	a, aID, b, _ := e.group()

	a.send(event.SendMessage, event.SendMessagePayload{SessionID: aID, Content: "before the drop"})
	b.expect(event.NewMessage)
	a.ws.Close(websocket.StatusNormalClosure, "")

	again := e.dial("")
	again.send(event.JoinChat, event.JoinChatPayload{SessionID: aID})
	joined := again.expect(event.JoinedGroup).(*event.JoinedGroupPayload)
	assert.False(t, joined.IsNewGroup)
	prev := again.expect(event.PreviousMessages).(*event.PreviousMessagesPayload)
	require.Len(t, prev.Messages, 1)
	assert.Equal(t, "before the drop", prev.Messages[0].Content)
}

func TestDisconnectReleasesSeatAfterGrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResumeGrace = 50 * time.Millisecond
	e := newEnv(t, chat.DefaultConfig(), cfg)
	a, _, b, _ := e.group()

	a.ws.Close(websocket.StatusNormalClosure, "")

	left := b.expect(event.UserLeft).(*event.UserLeftPayload)
	assert.Equal(t, "BraveFox42", left.Username)
}

func TestLeaveRefillsFromWaiting(t *testing.T) {
	chatCfg := chat.DefaultConfig()
	chatCfg.MaxGroupSize = 2
	e := newEnv(t, chatCfg, DefaultConfig())
	a, aID, b, _ := e.group()

	c, cID := e.dial(""), e.session()
	c.send(event.JoinChat, event.JoinChatPayload{SessionID: cID})
	c.expect(event.WaitingForGroup)

	a.send(event.LeaveChat, event.LeaveChatPayload{SessionID: aID})
	a.expect(event.LeftChat)

	joined := c.expect(event.JoinedGroup).(*event.JoinedGroupPayload)
	assert.Equal(t, "KindBear33", joined.Username)
	c.expect(event.PreviousMessages)

	b.expect(event.UserLeft)
	in := b.expect(event.UserJoined).(*event.UserJoinedPayload)
	assert.Equal(t, cID, in.SessionID)
}

func TestBanAfterRepeatedViolations(t *testing.T) {
	e := newEnv(t, chat.DefaultConfig(), DefaultConfig())
	a, aID, b, _ := e.group()

	for range 3 {
		a.send(event.SendMessage, event.SendMessagePayload{SessionID: aID, Content: "this is shit"})
	}
	a.expect(event.Banned)

	left := b.expect(event.UserLeft).(*event.UserLeftPayload)
	assert.Equal(t, "BraveFox42", left.Username)

	a.send(event.JoinChat, event.JoinChatPayload{SessionID: aID})
	a.expect(event.Banned)
}

func TestMessageRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MessagesPerMinute = 1
	e := newEnv(t, chat.DefaultConfig(), cfg)
	a, aID, _, _ := e.group()

	a.send(event.SendMessage, event.SendMessagePayload{SessionID: aID, Content: "one"})
	a.expect(event.NewMessage)
	a.send(event.SendMessage, event.SendMessagePayload{SessionID: aID, Content: "two"})
	errEvent := a.expect(event.Error).(*event.ErrorPayload)
	assert.Equal(t, event.CodeRateLimited, errEvent.Code)
}

func TestWaitTimeout(t *testing.T) {
	chatCfg := chat.DefaultConfig()
	chatCfg.WaitTimeout = 20 * time.Millisecond
	cfg := DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	e := newEnv(t, chatCfg, cfg)

	c, id := e.dial(""), e.session()
	c.send(event.JoinChat, event.JoinChatPayload{SessionID: id})
	c.expect(event.WaitingForGroup)

	errEvent := c.expect(event.Error).(*event.ErrorPayload)
	assert.Equal(t, event.CodeWaitTimeout, errEvent.Code)
}

func token(t *testing.T, subject string, role model.Role) string {
	t.Helper()
	tok, err := auth.MakeJWT(auth.Identity{Subject: subject, Role: role}, "haven", testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestTherapyRoom(t *testing.T) {
	e := newEnv(t, chat.DefaultConfig(), DefaultConfig())
	ctx := context.Background()

	s, err := e.therapy.Request(ctx, "user-1", "user@example.com")
	require.NoError(t, err)
	_, err = e.therapy.Accept(ctx, s.ID, "therapist-1")
	require.NoError(t, err)
	_, err = e.therapy.Start(ctx, s.ID, "therapist-1")
	require.NoError(t, err)

	anon := e.dial("")
	anon.send(event.JoinTherapySession, event.JoinTherapyPayload{SessionID: s.ID, UserID: "user-1"})
	assert.Equal(t, event.CodeUnauthorized, anon.expect(event.Error).(*event.ErrorPayload).Code)

	stranger := e.dial(token(t, "user-2", model.RoleUser))
	stranger.send(event.JoinTherapySession, event.JoinTherapyPayload{SessionID: s.ID, UserID: "user-2"})
	assert.Equal(t, event.CodeUnauthorized, stranger.expect(event.Error).(*event.ErrorPayload).Code)

	user := e.dial(token(t, "user-1", model.RoleUser))
	user.send(event.JoinTherapySession, event.JoinTherapyPayload{SessionID: s.ID, UserID: "user-1"})
	started := user.expect(event.TherapySessionStarted).(*event.TherapySessionPayload)
	require.NotNil(t, started.Session.StartedAt)

	therapist := e.dial(token(t, "therapist-1", model.RoleTherapist))
	therapist.send(event.JoinTherapySession, event.JoinTherapyPayload{SessionID: s.ID, UserID: "therapist-1"})
	therapist.expect(event.TherapySessionStarted)

	joined := user.expect(event.UserJoinedTherapy).(*event.UserJoinedTherapyPayload)
	assert.Equal(t, "therapist-1", joined.UserID)
	assert.Equal(t, model.SenderTherapist, joined.SenderType)

	therapist.send(event.SendTherapyMessage, event.SendTherapyMessagePayload{
		SessionID: s.ID, SenderID: "therapist-1", SenderType: model.SenderTherapist, Content: "How are you today?",
	})
	for _, c := range []*conn{user, therapist} {
		msg := c.expect(event.NewTherapyMessage).(*event.NewTherapyMessagePayload)
		assert.Equal(t, "How are you today?", msg.Message.Content)
	}

	// Spoofing another sender is refused.
	user.send(event.SendTherapyMessage, event.SendTherapyMessagePayload{
		SessionID: s.ID, SenderID: "therapist-1", SenderType: model.SenderTherapist, Content: "spoof",
	})
	assert.Equal(t, event.CodeUnauthorized, user.expect(event.Error).(*event.ErrorPayload).Code)

	_, _, err = e.therapy.End(ctx, s.ID, therapy.Actor{ID: "user-1", Role: model.RoleUser})
	require.NoError(t, err)
	therapist.expect(event.TherapySessionEnded)

	user.send(event.SendTherapyMessage, event.SendTherapyMessagePayload{
		SessionID: s.ID, SenderID: "user-1", SenderType: model.SenderUser, Content: "still there?",
	})
	assert.Equal(t, event.CodeSessionEnded, user.expect(event.Error).(*event.ErrorPayload).Code)

	therapist.ws.Close(websocket.StatusNormalClosure, "")
	left := user.expect(event.UserLeftTherapy).(*event.UserLeftTherapyPayload)
	assert.Equal(t, "therapist-1", left.UserID)
}

func TestRunFailsWhenSubscribeFails(t *testing.T) {
	store := memstore.New()
	b := broker.NewLocal()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Subscribe(ctx, func(broker.Delivery) {}))

	hub := NewHub(chat.NewService(store, chat.DefaultConfig()), therapy.NewService(store), b, Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, broker.ErrSubscribed)
	case <-time.After(time.Second):
		t.Fatal("Run kept serving without a broker subscription")
	}

	select {
	case <-hub.Done():
	default:
		t.Fatal("hub not marked done")
	}
}

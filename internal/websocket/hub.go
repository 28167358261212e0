// Package websocket is the realtime channel: it tracks connected clients,
// turns client events into chat and therapy operations and fans broker
// deliveries out to the right connections.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/haven/internal/broker"
	"github.com/johndosdos/haven/internal/chat"
	"github.com/johndosdos/haven/internal/event"
	"github.com/johndosdos/haven/internal/metrics"
	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/therapy"
)

type Config struct {
	// ResumeGrace is how long a dropped connection keeps its chat seat.
	ResumeGrace time.Duration
	// SweepInterval is how often waiters are checked against the wait
	// timeout.
	SweepInterval     time.Duration
	MessagesPerMinute int
	TypingPerMinute   int
}

func DefaultConfig() Config {
	return Config{
		ResumeGrace:       30 * time.Second,
		SweepInterval:     15 * time.Second,
		MessagesPerMinute: 30,
		TypingPerMinute:   60,
	}
}

type Registration struct {
	Client *Client
	Done   chan struct{}
}

// Hub contains functions needed for the app state management.
type Hub struct {
	chat    *chat.Service
	therapy *therapy.Service
	broker  broker.Broker
	cfg     Config
	now     func() time.Time

	Register   chan Registration
	Unregister chan *Client
	BrokerMsg  chan broker.Delivery
	done       chan struct{}

	mu       sync.RWMutex
	clients  map[uuid.UUID]*Client
	sessions map[string]*Client
	rooms    map[int64]map[*Client]therapy.Actor
	grace    map[string]*time.Timer
}

// NewHub returns a new instance of Hub.
func NewHub(chatSvc *chat.Service, therapySvc *therapy.Service, b broker.Broker, cfg Config) *Hub {
	def := DefaultConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MessagesPerMinute <= 0 {
		cfg.MessagesPerMinute = def.MessagesPerMinute
	}
	if cfg.TypingPerMinute <= 0 {
		cfg.TypingPerMinute = def.TypingPerMinute
	}

	return &Hub{
		chat:       chatSvc,
		therapy:    therapySvc,
		broker:     b,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		Register:   make(chan Registration),
		Unregister: make(chan *Client),
		BrokerMsg:  make(chan broker.Delivery, 1024),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID]*Client),
		sessions:   make(map[string]*Client),
		rooms:      make(map[int64]map[*Client]therapy.Actor),
		grace:      make(map[string]*time.Timer),
	}
}

// Run manages incoming and outgoing hub traffic until ctx is done. It never
// publishes to the broker itself, so a busy broker cannot block fan-out. If
// the broker subscription fails Run returns the error without serving.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	err := h.broker.Subscribe(ctx, func(d broker.Delivery) {
		select {
		case h.BrokerMsg <- d:
		case <-ctx.Done():
		}
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to subscribe to broker", "error", err)
		return fmt.Errorf("subscribe to broker: %w", err)
	}

	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case reg := <-h.Register:
			client := reg.Client
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			client.Hub = h
			metrics.WSConnected()
			close(reg.Done)

		case client := <-h.Unregister:
			h.unregister(client)

		case d := <-h.BrokerMsg:
			h.route(d)

		case <-sweep.C:
			h.expireWaiting()

		case <-ctx.Done():
			slog.InfoContext(ctx, "hub stopped", "reason", ctx.Err())
			h.shutdown()
			return nil
		}
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	var left []int64
	var actor therapy.Actor
	for id, room := range h.rooms {
		if a, ok := room[c]; ok {
			actor = a
			left = append(left, id)
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, id)
			}
		}
	}
	h.mu.Unlock()

	c.close()
	metrics.WSDisconnected()

	if c.sessionID != "" {
		h.release(c.sessionID, c)
	}
	if len(left) > 0 {
		go h.announceTherapyLeave(left, actor)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range h.grace {
		t.Stop()
	}
	clear(h.grace)
	for _, c := range h.clients {
		c.close()
	}
}

// bind makes c the connection of a chat session and cancels a pending
// seat expiry.
func (h *Hub) bind(sessionID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[sessionID] = c
	if t, ok := h.grace[sessionID]; ok {
		t.Stop()
		delete(h.grace, sessionID)
	}
}

// unbind forgets the connection of a chat session without touching its seat.
func (h *Hub) unbind(sessionID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[sessionID] == c {
		delete(h.sessions, sessionID)
	}
}

// release is called when the connection of a seated or waiting session goes
// away. The seat is kept for ResumeGrace so a reconnecting client resumes
// where it was.
func (h *Hub) release(sessionID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[sessionID] != c {
		return
	}
	delete(h.sessions, sessionID)

	if h.cfg.ResumeGrace <= 0 {
		go h.expireSeat(sessionID)
		return
	}
	if t, ok := h.grace[sessionID]; ok {
		t.Stop()
	}
	h.grace[sessionID] = time.AfterFunc(h.cfg.ResumeGrace, func() { h.expireSeat(sessionID) })
}

// expireSeat gives up the seat of a session whose connection did not come
// back.
func (h *Hub) expireSeat(sessionID string) {
	h.mu.Lock()
	delete(h.grace, sessionID)
	_, rebound := h.sessions[sessionID]
	h.mu.Unlock()
	if rebound {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := h.chat.Leave(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, chat.ErrNotInGroup) && !errors.Is(err, chat.ErrUnknownSession) {
			slog.WarnContext(ctx, "failed to release chat seat",
				"session_id", sessionID,
				"error", err)
		}
		return
	}
	slog.InfoContext(ctx, "chat seat released after disconnect", "session_id", sessionID)
	h.afterLeave(ctx, res)
}

// LeaveChat removes a session from chat on behalf of a REST caller. A
// connection bound to the session is told it left and the group is told the
// same way a leave_chat event would.
func (h *Hub) LeaveChat(ctx context.Context, sessionID string) (chat.LeaveResult, error) {
	res, err := h.chat.Leave(ctx, sessionID)
	if err != nil {
		return res, err
	}

	h.mu.Lock()
	if t, ok := h.grace[sessionID]; ok {
		t.Stop()
		delete(h.grace, sessionID)
	}
	c := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	if c != nil {
		c.Send(event.Must(event.LeftChat, event.LeftChatPayload{Message: "You have left the chat."}))
	}
	h.afterLeave(ctx, res)
	return res, nil
}

// JoinChat seats a session without a socket of its own. Everyone seated by
// the call, the caller included, hears about it through the broker.
func (h *Hub) JoinChat(ctx context.Context, sessionID string) (chat.JoinResult, error) {
	res, err := h.chat.Join(ctx, sessionID)
	if err != nil || res.Waiting {
		return res, err
	}

	if res.IsNewGroup {
		metrics.RecordGroupFormed()
	}
	h.announcePlaced(ctx, "", *res.Group, res.IsNewGroup, res.Placed, res.History)
	return res, nil
}

// SendChatMessage posts a message for a session without a socket and fans it
// out to the group.
func (h *Hub) SendChatMessage(ctx context.Context, sessionID, content string) (chat.SendResult, error) {
	res, err := h.chat.Send(ctx, sessionID, content)
	if err != nil {
		return res, err
	}
	metrics.RecordChatMessage(res.Message.Flagged)

	h.publish(ctx, broker.ToGroup(res.Message.GroupID, event.Must(event.NewMessage, event.NewMessagePayload{Message: res.Message})))

	if res.Banned {
		metrics.RecordBan()
		h.publish(ctx, broker.ToSession(sessionID, event.Must(event.Banned, event.BannedPayload{Message: bannedMessage})))
		if res.Left != nil {
			h.afterLeave(ctx, *res.Left)
		}
	}
	return res, nil
}

func (h *Hub) expireWaiting() {
	expired := h.chat.ExpireWaiting(h.now())
	if len(expired) == 0 {
		return
	}
	metrics.RecordWaitTimeouts(len(expired))

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range expired {
		if c, ok := h.sessions[id]; ok {
			c.Send(event.ErrorEvent(event.CodeWaitTimeout, "No group could be formed in time. Please try again."))
		}
	}
}

func (h *Hub) publish(ctx context.Context, d broker.Delivery) {
	if err := h.broker.Publish(ctx, d); err != nil {
		metrics.RecordPublishError()
		slog.WarnContext(ctx, "failed to publish delivery",
			"scope", d.Scope,
			"target", d.Target,
			"event", d.Event.Type,
			"error", err)
	}
}

// route hands a delivery to the local connections it addresses.
func (h *Hub) route(d broker.Delivery) {
	metrics.RecordEvent(string(d.Event.Type))

	h.mu.RLock()
	defer h.mu.RUnlock()

	switch d.Scope {
	case broker.ScopeSession:
		if c, ok := h.sessions[d.Target]; ok {
			c.Send(d.Event)
		}

	case broker.ScopeGroup:
		gid, err := strconv.ParseInt(d.Target, 10, 64)
		if err != nil {
			slog.Warn("invalid group delivery target", "target", d.Target)
			return
		}
		for _, sid := range h.chat.Members(gid) {
			if sid == d.Exclude {
				continue
			}
			if c, ok := h.sessions[sid]; ok {
				c.Send(d.Event)
			}
		}

	case broker.ScopeTherapy:
		id, err := strconv.ParseInt(d.Target, 10, 64)
		if err != nil {
			slog.Warn("invalid therapy delivery target", "target", d.Target)
			return
		}
		for c, actor := range h.rooms[id] {
			if d.Exclude != "" && actor.ID == d.Exclude {
				continue
			}
			c.Send(d.Event)
		}

	default:
		slog.Warn("unknown delivery scope", "scope", d.Scope)
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Connections returns the number of registered clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SessionStarted(ctx context.Context, s model.TherapySession) {
	h.publish(ctx, broker.ToTherapy(s.ID, event.Must(event.TherapySessionStarted, event.TherapySessionPayload{Session: s})))
}

func (h *Hub) SessionEnded(ctx context.Context, s model.TherapySession) {
	h.publish(ctx, broker.ToTherapy(s.ID, event.Must(event.TherapySessionEnded, event.TherapySessionPayload{Session: s})))
}

func (h *Hub) MessageCreated(ctx context.Context, msg model.TherapyMessage) {
	h.publish(ctx, broker.ToTherapy(msg.SessionID, event.Must(event.NewTherapyMessage, event.NewTherapyMessagePayload{Message: msg})))
}

func (h *Hub) announceTherapyLeave(ids []int64, actor therapy.Actor) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, id := range ids {
		h.publish(ctx, broker.ToTherapy(id, event.Must(event.UserLeftTherapy, event.UserLeftTherapyPayload{UserID: actor.ID})))
	}
}

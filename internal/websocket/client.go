package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/johndosdos/haven/internal/auth"
	"github.com/johndosdos/haven/internal/event"
	"github.com/johndosdos/haven/internal/metrics"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	readLimit    = 32 << 10
)

type Client struct {
	ID         uuid.UUID
	conn       *websocket.Conn
	Hub        *Hub
	MessageCh  chan event.Envelope
	messageLim *rate.Limiter
	typingLim  *rate.Limiter
	claims     *auth.Claims

	// sessionID is the chat session this connection joined with. Only the
	// read goroutine writes it.
	sessionID string

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an accepted connection. claims may be nil for anonymous
// chat users.
func NewClient(conn *websocket.Conn, claims *auth.Claims) *Client {
	if conn != nil {
		conn.SetReadLimit(readLimit)
	}
	return &Client{
		ID:        uuid.New(),
		conn:      conn,
		MessageCh: make(chan event.Envelope, sendBuffer),
		claims:    claims,
	}
}

func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	l := rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
	c.messageLim = l
}

func (c *Client) SetTypingLimiter(requests int, window time.Duration) {
	l := rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
	c.typingLim = l
}

// Send queues env for the write pump. A full buffer drops the event rather
// than stall the sender. It reports whether the event was queued.
func (c *Client) Send(env event.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.MessageCh <- env:
		return true
	default:
		slog.Warn("skipping event - channel full or client slow",
			"client_id", c.ID.String(),
			"event", env.Type)
		metrics.RecordDropped()
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.MessageCh)
	}
}

// WriteMessage writes queued events to the outgoing websocket stream.
func (c *Client) WriteMessage(ctx context.Context) {
	for {
		select {
		case env, ok := <-c.MessageCh:
			// We don't want to continue processing when the channel has already been
			// closed.
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, env)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "failed to write event",
					"error", err,
					"event", env.Type,
					"client_id", c.ID.String())
				c.conn.CloseNow()
				return
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}

package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/haven/internal/auth"
	"github.com/johndosdos/haven/internal/event"
)

// ReadMessage reads the incoming data from the websocket stream and
// dispatches it. Bad frames are answered with an error event; the
// connection stays open.
func (c *Client) ReadMessage(ctx context.Context) {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				slog.WarnContext(ctx, "websocket read failed", "error", err)
			}
			return
		}

		// The app only supports text format for now...
		if msgType != websocket.MessageText {
			c.Send(event.ErrorEvent(event.CodeBadRequest, "Only text frames are supported"))
			continue
		}

		env, payload, err := event.Decode(p)
		if err != nil {
			slog.DebugContext(ctx, "rejected client event", "error", err)
			msg := "Malformed event"
			if errors.Is(err, event.ErrUnknownType) {
				msg = "Unknown event type"
			}
			c.Send(event.ErrorEvent(event.CodeBadRequest, msg))
			continue
		}
		if !event.IsClientType(env.Type) {
			c.Send(event.ErrorEvent(event.CodeBadRequest, "Event type is not accepted from clients"))
			continue
		}

		c.Hub.dispatch(ctx, c, env.Type, payload)
	}
}

// Serve registers conn with the hub and pumps it until the connection or
// ctx ends. It blocks, so call it from the upgrading handler.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, claims *auth.Claims) {
	c := NewClient(conn, claims)
	c.SetMessageLimiter(h.cfg.MessagesPerMinute, time.Minute)
	c.SetTypingLimiter(h.cfg.TypingPerMinute, time.Minute)

	reg := Registration{
		Client: c,
		Done:   make(chan struct{}),
	}
	select {
	case h.Register <- reg:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	case <-ctx.Done():
		conn.CloseNow()
		return
	}

	// Wait for registration to complete
	<-reg.Done

	c.Send(event.Must(event.Connected, event.ConnectedPayload{Message: "Connected to Haven"}))

	// We block on c.ReadMessage() because the request context will be canceled as soon
	// we return from the handler.
	go c.WriteMessage(ctx)
	c.ReadMessage(ctx)
}

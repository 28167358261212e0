package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/johndosdos/haven/internal/auth"
	ws "github.com/johndosdos/haven/internal/websocket"
)

// ServeWs handles the client's websocket connection upgrade. Claims are
// optional: anonymous chat needs none, therapy rooms check them.
func ServeWs(h *ws.Hub, allowedOrigins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     allowedOrigins,
			InsecureSkipVerify: len(allowedOrigins) == 0,
		})
		if err != nil {
			slog.WarnContext(ctx, "websocket upgrade failed", "error", err)
			return
		}

		claims, _ := auth.GetClaimsFromContext(ctx)
		slog.DebugContext(ctx, "upgraded connection", "authenticated", claims != nil)

		// Serve blocks until the connection ends since the request context
		// is canceled as soon as the handler returns.
		h.Serve(ctx, conn, claims)
	}
}

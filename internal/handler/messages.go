package handler

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/johndosdos/haven/internal/chat"
)

// GroupMessages loads group history for a seated session, either the newest
// messages or every message after since. Clients use it to fill gaps after a
// reconnect.
func GroupMessages(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := pathInt(r, "groupID")
		if err != nil {
			fail(w, r, err)
			return
		}

		q := r.URL.Query()
		sessionID := q.Get("session_id")
		if sessionID == "" || !slices.Contains(svc.Members(groupID), sessionID) {
			writeError(w, http.StatusForbidden, "Session is not a member of this group")
			return
		}

		limit, _ := strconv.Atoi(q.Get("limit"))
		since, _ := strconv.ParseInt(q.Get("since"), 10, 64)

		msgs, err := svc.Messages(r.Context(), groupID, limit, since)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
	}
}

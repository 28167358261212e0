package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/haven/internal/metrics"
	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/therapy"
)

func writeSession(w http.ResponseWriter, code int, s model.TherapySession) {
	writeJSON(w, code, map[string]any{"success": true, "session": s})
}

func writeSessions(w http.ResponseWriter, sessions []model.TherapySession) {
	if sessions == nil {
		sessions = []model.TherapySession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": sessions})
}

func RequestTherapy(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserRef   string `json:"user_session_id"`
			UserEmail string `json:"user_email"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}

		claims, err := claimsOf(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		if body.UserRef == "" {
			body.UserRef = claims.Subject
		}
		if body.UserEmail == "" {
			body.UserEmail = claims.Email
		}
		if _, err := self(r, body.UserRef); err != nil {
			fail(w, r, err)
			return
		}

		session, err := svc.Request(r.Context(), body.UserRef, body.UserEmail)
		if err != nil {
			fail(w, r, err)
			return
		}
		metrics.RecordTherapyTransition(string(session.Status))
		writeSession(w, http.StatusCreated, session)
	}
}

func PendingTherapy(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := svc.Pending(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeSessions(w, sessions)
	}
}

// therapistFor resolves the therapist acting on a session. A therapist_id in
// the body must match the caller.
func therapistFor(w http.ResponseWriter, r *http.Request) (string, error) {
	claims, err := claimsOf(r)
	if err != nil {
		return "", err
	}

	var body struct {
		TherapistID string `json:"therapist_id"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		return "", err
	}
	if body.TherapistID == "" || body.TherapistID == claims.Subject {
		return claims.Subject, nil
	}
	if claims.Role == model.RoleAdmin {
		return body.TherapistID, nil
	}
	return "", errForbidden
}

func AcceptTherapy(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "sessionID")
		if err != nil {
			fail(w, r, err)
			return
		}
		therapistID, err := therapistFor(w, r)
		if err != nil {
			fail(w, r, err)
			return
		}

		session, err := svc.Accept(r.Context(), id, therapistID)
		if err != nil {
			fail(w, r, err)
			return
		}
		metrics.RecordTherapyTransition(string(session.Status))
		writeSession(w, http.StatusOK, session)
	}
}

func StartTherapy(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "sessionID")
		if err != nil {
			fail(w, r, err)
			return
		}
		therapistID, err := therapistFor(w, r)
		if err != nil {
			fail(w, r, err)
			return
		}

		session, err := svc.Start(r.Context(), id, therapistID)
		if err != nil {
			fail(w, r, err)
			return
		}
		metrics.RecordTherapyTransition(string(session.Status))
		writeSession(w, http.StatusOK, session)
	}
}

// EndTherapy ends a session for any participant. Ending an ended session
// returns it unchanged.
func EndTherapy(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "sessionID")
		if err != nil {
			fail(w, r, err)
			return
		}
		claims, err := claimsOf(r)
		if err != nil {
			fail(w, r, err)
			return
		}

		session, changed, err := svc.End(r.Context(), id, actorOf(claims))
		if err != nil {
			fail(w, r, err)
			return
		}
		if changed {
			metrics.RecordTherapyTransition(string(session.Status))
		}
		writeSession(w, http.StatusOK, session)
	}
}

func GetTherapySession(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "sessionID")
		if err != nil {
			fail(w, r, err)
			return
		}
		claims, err := claimsOf(r)
		if err != nil {
			fail(w, r, err)
			return
		}

		session, err := svc.Get(r.Context(), id)
		if err != nil {
			fail(w, r, err)
			return
		}
		if !therapy.CanAccess(session, actorOf(claims)) {
			fail(w, r, therapy.ErrNotParticipant)
			return
		}
		writeSession(w, http.StatusOK, session)
	}
}

func UserTherapySessions(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "userRef")
		if _, err := self(r, ref); err != nil {
			fail(w, r, err)
			return
		}

		sessions, err := svc.UserSessions(r.Context(), ref)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeSessions(w, sessions)
	}
}

func TherapistSessions(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "therapistID")
		if _, err := self(r, id); err != nil {
			fail(w, r, err)
			return
		}

		sessions, err := svc.TherapistSessions(r.Context(), id)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeSessions(w, sessions)
	}
}

func SendTherapyMessage(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SessionID  int64            `json:"session_id"`
			SenderID   string           `json:"sender_id"`
			SenderType model.SenderType `json:"sender_type"`
			Content    string           `json:"content"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		claims, err := claimsOf(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		if body.SenderID == "" {
			body.SenderID = claims.Subject
		}
		if body.SenderID != claims.Subject {
			fail(w, r, errForbidden)
			return
		}
		if body.SessionID <= 0 {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}

		msg, err := svc.SendMessage(r.Context(), body.SessionID, body.SenderID, body.SenderType, body.Content)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": msg})
	}
}

func TherapyMessages(svc *therapy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "sessionID")
		if err != nil {
			fail(w, r, err)
			return
		}
		claims, err := claimsOf(r)
		if err != nil {
			fail(w, r, err)
			return
		}

		msgs, err := svc.Messages(r.Context(), id, actorOf(claims))
		if err != nil {
			fail(w, r, err)
			return
		}
		if msgs == nil {
			msgs = []model.TherapyMessage{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
	}
}

// Package handler implements the REST surface: chat sessions and moderation,
// therapy sessions, the diary and calendar, quotes and sign-in.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/haven/internal/auth"
	"github.com/johndosdos/haven/internal/chat"
	"github.com/johndosdos/haven/internal/diary"
	"github.com/johndosdos/haven/internal/model"
	"github.com/johndosdos/haven/internal/therapy"
)

const maxBodyBytes = 64 << 10

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("forbidden")
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

// decodeJSON reads a JSON request body into v. Unknown fields are ignored
// so older clients keep working.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return v, nil
}

// statusFor maps a domain error to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, diary.ErrInvalidEntry),
		errors.Is(err, diary.ErrInvalidDate),
		errors.Is(err, therapy.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrNoClaims):
		return http.StatusUnauthorized, "Missing access token"
	case errors.Is(err, errForbidden),
		errors.Is(err, therapy.ErrNotParticipant),
		errors.Is(err, diary.ErrForbidden):
		return http.StatusForbidden, "Insufficient permissions"
	case errors.Is(err, chat.ErrBanned):
		return http.StatusForbidden, "You are banned from chat"
	case errors.Is(err, diary.ErrDateLocked):
		return http.StatusForbidden, "Cannot create or edit an entry for this date"
	case errors.Is(err, model.ErrNotFound), errors.Is(err, chat.ErrUnknownSession):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, therapy.ErrInvalidTransition),
		errors.Is(err, therapy.ErrSessionEnded),
		errors.Is(err, chat.ErrNotInGroup),
		errors.Is(err, model.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	writeError(w, code, msg)
}

func claimsOf(r *http.Request) (*auth.Claims, error) {
	return auth.GetClaimsFromContext(r.Context())
}

// self checks that the caller is ref or an admin.
func self(r *http.Request, ref string) (*auth.Claims, error) {
	claims, err := claimsOf(r)
	if err != nil {
		return nil, err
	}
	if claims.Subject != ref && claims.Role != model.RoleAdmin {
		return nil, errForbidden
	}
	return claims, nil
}

func actorOf(c *auth.Claims) therapy.Actor {
	return therapy.Actor{ID: c.Subject, Role: c.Role}
}

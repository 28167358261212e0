package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/johndosdos/haven/internal/auth"
	"github.com/johndosdos/haven/internal/model"
)

// AccountStore persists signed-in users and staff accounts.
type AccountStore interface {
	UpsertUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	CreateStaff(ctx context.Context, st model.Staff) (model.Staff, error)
	GetStaffByEmail(ctx context.Context, email string) (model.Staff, error)
}

// TokenConfig holds what is needed to verify provider tokens and issue
// access tokens.
type TokenConfig struct {
	Secret         string
	Issuer         string
	TTL            time.Duration
	ProviderSecret string
}

type tokenResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      any       `json:"user"`
}

// AuthCallback exchanges the identity provider's access token for a user
// profile and a Haven access token.
func AuthCallback(db AccountStore, tc TokenConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body struct {
			AccessToken string `json:"access_token"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		if body.AccessToken == "" {
			writeError(w, http.StatusBadRequest, "No access token provided")
			return
		}

		profile, err := auth.VerifyProviderToken(body.AccessToken, tc.ProviderSecret, time.Now().UTC())
		if err != nil {
			slog.WarnContext(ctx, "rejected provider token", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid token")
			return
		}

		user, err := db.UpsertUser(ctx, profile)
		if err != nil {
			fail(w, r, err)
			return
		}

		token, err := auth.MakeJWT(auth.Identity{
			Subject: user.ID,
			Role:    model.RoleUser,
			Email:   user.Email,
		}, tc.Issuer, tc.Secret, tc.TTL)
		if err != nil {
			fail(w, r, err)
			return
		}

		slog.InfoContext(ctx, "user authenticated", "user_id", user.ID)
		writeJSON(w, http.StatusOK, tokenResponse{
			Message:   "User authenticated successfully",
			Token:     token,
			ExpiresAt: time.Now().UTC().Add(tc.TTL),
			User:      user,
		})
	}
}

// CurrentUser returns the profile of the caller.
func CurrentUser(db AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := claimsOf(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		if claims.Role != model.RoleUser {
			writeJSON(w, http.StatusOK, map[string]any{
				"user": map[string]any{"id": claims.Subject, "email": claims.Email, "role": claims.Role},
			})
			return
		}

		user, err := db.GetUser(r.Context(), claims.Subject)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

// StaffLogin signs in a therapist or admin with email and password.
func StaffLogin(db AccountStore, tc TokenConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			fail(w, r, err)
			return
		}
		body.Email = strings.TrimSpace(body.Email)
		if body.Email == "" || body.Password == "" {
			writeError(w, http.StatusBadRequest, "Email and password are required")
			return
		}

		staff, err := db.GetStaffByEmail(ctx, body.Email)
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		if err != nil {
			fail(w, r, err)
			return
		}

		if ok, err := auth.CheckPasswordHash(body.Password, staff.HashedPassword); !ok {
			slog.InfoContext(ctx, "staff login rejected", "email", staff.Email, "error", err)
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}

		token, err := auth.MakeJWT(auth.Identity{
			Subject: staff.ID,
			Role:    staff.Role,
			Email:   staff.Email,
		}, tc.Issuer, tc.Secret, tc.TTL)
		if err != nil {
			fail(w, r, err)
			return
		}

		slog.InfoContext(ctx, "staff logged in",
			"staff_id", staff.ID,
			"role", staff.Role)
		writeJSON(w, http.StatusOK, tokenResponse{
			Message:   "Logged in successfully",
			Token:     token,
			ExpiresAt: time.Now().UTC().Add(tc.TTL),
			User:      staff,
		})
	}
}

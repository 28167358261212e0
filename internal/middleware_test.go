package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/johndosdos/haven/internal/auth"
	"github.com/johndosdos/haven/internal/model"
)

const testSecret = "middleware-secret"

func token(t *testing.T, role model.Role, ttl time.Duration) string {
	t.Helper()
	s, err := auth.MakeJWT(auth.Identity{Subject: "subject-1", Role: role}, "haven", testSecret, ttl)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return s
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		Name              string
		header            string
		query             string
		wantHandlerCalled bool
		wantCode          int
	}{
		{"valid_bearer", "Bearer " + token(t, model.RoleUser, time.Minute), "", true, http.StatusOK},
		{"valid_query_token", "", token(t, model.RoleUser, time.Minute), true, http.StatusOK},
		{"expired_token", "Bearer " + token(t, model.RoleUser, -time.Second), "", false, http.StatusUnauthorized},
		{"wrong_scheme", "Basic abc", "", false, http.StatusUnauthorized},
		{"no_token", "", "", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			target := "/api/therapy/pending"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			isHandlerCalled := false
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				isHandlerCalled = true
				claims, err := auth.GetClaimsFromContext(r.Context())
				assert.NoError(t, err)
				assert.Equal(t, "subject-1", claims.Subject)
				w.WriteHeader(http.StatusOK)
			})

			Authenticate(testSecret)(nextHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantHandlerCalled, isHandlerCalled)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     model.Role
		wantCode int
	}{
		{"therapist_allowed", model.RoleTherapist, http.StatusOK},
		{"admin_allowed", model.RoleAdmin, http.StatusOK},
		{"user_forbidden", model.RoleUser, http.StatusForbidden},
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Authenticate(testSecret)(RequireRole(model.RoleTherapist, model.RoleAdmin)(ok))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/therapy/pending", nil)
			req.Header.Set("Authorization", "Bearer "+token(t, tt.role, time.Minute))
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	RequireRole(model.RoleAdmin)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuth(t *testing.T) {
	var gotClaims bool
	h := OptionalAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := auth.GetClaimsFromContext(r.Context())
		gotClaims = err == nil
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil))
	assert.False(t, gotClaims)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws?token="+token(t, model.RoleUser, time.Minute), nil))
	assert.True(t, gotClaims)
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS("https://app.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/chat/session", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

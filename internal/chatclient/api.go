// Package chatclient is a Go client for the Haven backend: a REST wrapper,
// the realtime chat and therapy state machines, the typing debouncer, the
// therapy countdown and the pending-queue poller.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/johndosdos/haven/internal/model"
)

type API struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPI returns a client for the REST API rooted at baseURL. A nil client
// uses one with a 10 second timeout.
func NewAPI(baseURL string, client *http.Client) *API {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// SetToken sets the access token sent with every request.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

func (a *API) bearer() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: could not encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &NetworkError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return newBackendError(resp.StatusCode, e.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &BackendError{Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

// Session is an anonymous chat identity.
type Session struct {
	ID       string `json:"user_session_id"`
	Username string `json:"username"`
}

// CreateSession registers an anonymous chat session. It is required before
// joining chat.
func (a *API) CreateSession(ctx context.Context) (Session, error) {
	var s Session
	if err := a.do(ctx, http.MethodPost, "/api/chat/session", nil, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

type ChatStatus struct {
	Banned  bool             `json:"banned"`
	BanInfo *model.UserFlag  `json:"ban_info"`
	InGroup bool             `json:"in_group"`
	Group   *model.ChatGroup `json:"group"`
	Waiting bool             `json:"waiting"`
}

func (a *API) ChatStatus(ctx context.Context, sessionID string) (ChatStatus, error) {
	if sessionID == "" {
		return ChatStatus{}, &ValidationError{Field: "session_id", Message: "is required"}
	}
	var res struct {
		Status ChatStatus `json:"status"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/chat/status/"+url.PathEscape(sessionID), nil, &res); err != nil {
		return ChatStatus{}, err
	}
	return res.Status, nil
}

// Messages returns group messages after sinceID, or the newest ones when
// sinceID is 0.
func (a *API) Messages(ctx context.Context, groupID int64, sessionID string, sinceID int64) ([]model.ChatMessage, error) {
	if groupID <= 0 {
		return nil, &ValidationError{Field: "group_id", Message: "is required"}
	}
	q := url.Values{}
	q.Set("session_id", sessionID)
	if sinceID > 0 {
		q.Set("since", strconv.FormatInt(sinceID, 10))
	}

	var res struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	path := fmt.Sprintf("/api/chat/messages/%d?%s", groupID, q.Encode())
	if err := a.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (a *API) LeaveChat(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return &ValidationError{Field: "session_id", Message: "is required"}
	}
	return a.do(ctx, http.MethodPost, "/api/chat/leave", map[string]string{"user_session_id": sessionID}, nil)
}

type sessionResponse struct {
	Session model.TherapySession `json:"session"`
}

type sessionsResponse struct {
	Sessions []model.TherapySession `json:"sessions"`
}

func (a *API) RequestTherapy(ctx context.Context, userRef, email string) (model.TherapySession, error) {
	if userRef == "" {
		return model.TherapySession{}, &ValidationError{Field: "user_session_id", Message: "is required"}
	}
	if email == "" {
		return model.TherapySession{}, &ValidationError{Field: "user_email", Message: "is required"}
	}

	var res sessionResponse
	err := a.do(ctx, http.MethodPost, "/api/therapy/request", map[string]string{
		"user_session_id": userRef,
		"user_email":      email,
	}, &res)
	return res.Session, err
}

func (a *API) PendingTherapy(ctx context.Context) ([]model.TherapySession, error) {
	var res sessionsResponse
	err := a.do(ctx, http.MethodGet, "/api/therapy/pending", nil, &res)
	return res.Sessions, err
}

// AcceptTherapy accepts a request. An empty therapistID accepts as the
// caller.
func (a *API) AcceptTherapy(ctx context.Context, id int64, therapistID string) (model.TherapySession, error) {
	var in any
	if therapistID != "" {
		in = map[string]string{"therapist_id": therapistID}
	}
	var res sessionResponse
	err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/therapy/accept/%d", id), in, &res)
	return res.Session, err
}

func (a *API) StartTherapy(ctx context.Context, id int64) (model.TherapySession, error) {
	var res sessionResponse
	err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/therapy/start/%d", id), nil, &res)
	return res.Session, err
}

// EndTherapy is safe to call more than once: an ended session is returned
// unchanged.
func (a *API) EndTherapy(ctx context.Context, id int64) (model.TherapySession, error) {
	var res sessionResponse
	err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/therapy/end/%d", id), nil, &res)
	return res.Session, err
}

func (a *API) TherapySession(ctx context.Context, id int64) (model.TherapySession, error) {
	var res sessionResponse
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/therapy/session/%d", id), nil, &res)
	return res.Session, err
}

func (a *API) TherapySessions(ctx context.Context, userRef string) ([]model.TherapySession, error) {
	var res sessionsResponse
	err := a.do(ctx, http.MethodGet, "/api/therapy/user/"+url.PathEscape(userRef), nil, &res)
	return res.Sessions, err
}

func (a *API) TherapyMessages(ctx context.Context, id int64) ([]model.TherapyMessage, error) {
	var res struct {
		Messages []model.TherapyMessage `json:"messages"`
	}
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/therapy/messages/%d", id), nil, &res)
	return res.Messages, err
}

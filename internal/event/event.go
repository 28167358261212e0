// Package event defines the realtime channel protocol. Every frame on the
// websocket is an Envelope whose Type names exactly one of the payload types
// below; anything else is rejected.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/johndosdos/haven/internal/model"
)

type Type string

// Client -> server.
const (
	JoinChat           Type = "join_chat"
	SendMessage        Type = "send_message"
	Typing             Type = "typing"
	LeaveChat          Type = "leave_chat"
	JoinTherapySession Type = "join_therapy_session"
	SendTherapyMessage Type = "send_therapy_message"
)

// Server -> client.
const (
	Connected             Type = "connected"
	WaitingForGroup       Type = "waiting_for_group"
	JoinedGroup           Type = "joined_group"
	PreviousMessages      Type = "previous_messages"
	NewMessage            Type = "new_message"
	UserJoined            Type = "user_joined"
	UserLeft              Type = "user_left"
	UserTyping            Type = "user_typing"
	Banned                Type = "banned"
	LeftChat              Type = "left_chat"
	Error                 Type = "error"
	UserJoinedTherapy     Type = "user_joined_therapy"
	NewTherapyMessage     Type = "new_therapy_message"
	TherapySessionStarted Type = "therapy_session_started"
	TherapySessionEnded   Type = "therapy_session_ended"
	UserLeftTherapy       Type = "user_left_therapy"
)

// Error codes carried by ErrorPayload.
const (
	CodeBadRequest     = "bad_request"
	CodeUnknownSession = "unknown_session"
	CodeNotInGroup     = "not_in_group"
	CodeRateLimited    = "rate_limited"
	CodeWaitTimeout    = "wait_timeout"
	CodeUnauthorized   = "unauthorized"
	CodeSessionEnded   = "session_ended"
	CodeInternal       = "internal_error"
)

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrMalformed   = errors.New("malformed event payload")
)

// Envelope is the wire frame.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

type JoinChatPayload struct {
	SessionID string `json:"session_id"`
}

type SendMessagePayload struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

type TypingPayload struct {
	SessionID string `json:"session_id"`
	IsTyping  bool   `json:"is_typing"`
}

type LeaveChatPayload struct {
	SessionID string `json:"session_id"`
}

type JoinTherapyPayload struct {
	SessionID int64  `json:"session_id"`
	UserID    string `json:"user_id"`
}

type SendTherapyMessagePayload struct {
	SessionID  int64            `json:"session_id"`
	SenderID   string           `json:"sender_id"`
	SenderType model.SenderType `json:"sender_type"`
	Content    string           `json:"content"`
}

type ConnectedPayload struct {
	Message string `json:"message"`
}

type WaitingPayload struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

type JoinedGroupPayload struct {
	Group      model.ChatGroup `json:"group"`
	Username   string          `json:"username"`
	IsNewGroup bool            `json:"is_new_group"`
}

type PreviousMessagesPayload struct {
	Messages []model.ChatMessage `json:"messages"`
}

type NewMessagePayload struct {
	Message model.ChatMessage `json:"message"`
}

type UserJoinedPayload struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

type UserLeftPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type UserTypingPayload struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"is_typing"`
}

type BannedPayload struct {
	Message string `json:"message"`
}

type LeftChatPayload struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type UserJoinedTherapyPayload struct {
	UserID     string           `json:"user_id"`
	SenderType model.SenderType `json:"sender_type"`
}

type NewTherapyMessagePayload struct {
	Message model.TherapyMessage `json:"message"`
}

type TherapySessionPayload struct {
	Session model.TherapySession `json:"session"`
}

type UserLeftTherapyPayload struct {
	UserID string `json:"user_id"`
}

// payloadFor returns a pointer to a zero payload of the type registered for
// t, or nil when t is not part of the protocol.
func payloadFor(t Type) any {
	switch t {
	case JoinChat:
		return &JoinChatPayload{}
	case SendMessage:
		return &SendMessagePayload{}
	case Typing:
		return &TypingPayload{}
	case LeaveChat:
		return &LeaveChatPayload{}
	case JoinTherapySession:
		return &JoinTherapyPayload{}
	case SendTherapyMessage:
		return &SendTherapyMessagePayload{}
	case Connected:
		return &ConnectedPayload{}
	case WaitingForGroup:
		return &WaitingPayload{}
	case JoinedGroup:
		return &JoinedGroupPayload{}
	case PreviousMessages:
		return &PreviousMessagesPayload{}
	case NewMessage:
		return &NewMessagePayload{}
	case UserJoined:
		return &UserJoinedPayload{}
	case UserLeft:
		return &UserLeftPayload{}
	case UserTyping:
		return &UserTypingPayload{}
	case Banned:
		return &BannedPayload{}
	case LeftChat:
		return &LeftChatPayload{}
	case Error:
		return &ErrorPayload{}
	case UserJoinedTherapy:
		return &UserJoinedTherapyPayload{}
	case NewTherapyMessage:
		return &NewTherapyMessagePayload{}
	case TherapySessionStarted, TherapySessionEnded:
		return &TherapySessionPayload{}
	case UserLeftTherapy:
		return &UserLeftTherapyPayload{}
	}
	return nil
}

// IsClientType reports whether t may be sent by a client.
func IsClientType(t Type) bool {
	switch t {
	case JoinChat, SendMessage, Typing, LeaveChat, JoinTherapySession, SendTherapyMessage:
		return true
	}
	return false
}

// New wraps payload in an Envelope of type t.
func New(t Type, payload any) (Envelope, error) {
	if payloadFor(t) == nil {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("could not encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: data}, nil
}

// Must is New for payloads that are known to encode.
func Must(t Type, payload any) Envelope {
	env, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// ErrorEvent builds an error frame.
func ErrorEvent(code, message string) Envelope {
	return Must(Error, ErrorPayload{Code: code, Message: message})
}

// Decode parses a raw frame, rejecting unknown types, unknown fields and
// payloads that fail validation. The returned value is a pointer to the
// payload struct registered for the envelope type.
func Decode(p []byte) (Envelope, any, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	payload := payloadFor(env.Type)
	if payload == nil {
		return env, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return env, nil, fmt.Errorf("%w: %s has no data", ErrMalformed, env.Type)
	}

	dec = json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return env, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}

	if err := Validate(payload); err != nil {
		return env, nil, err
	}

	return env, payload, nil
}

// Validate checks the required fields of client payloads.
func Validate(payload any) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s is required", ErrMalformed, field)
	}

	switch p := payload.(type) {
	case *JoinChatPayload:
		if p.SessionID == "" {
			return missing("session_id")
		}
	case *SendMessagePayload:
		if p.SessionID == "" {
			return missing("session_id")
		}
		if p.Content == "" {
			return missing("content")
		}
	case *TypingPayload:
		if p.SessionID == "" {
			return missing("session_id")
		}
	case *LeaveChatPayload:
		if p.SessionID == "" {
			return missing("session_id")
		}
	case *JoinTherapyPayload:
		if p.SessionID <= 0 {
			return missing("session_id")
		}
		if p.UserID == "" {
			return missing("user_id")
		}
	case *SendTherapyMessagePayload:
		if p.SessionID <= 0 {
			return missing("session_id")
		}
		if p.SenderID == "" {
			return missing("sender_id")
		}
		if !p.SenderType.Valid() {
			return fmt.Errorf("%w: sender_type must be user or therapist", ErrMalformed)
		}
		if p.Content == "" {
			return missing("content")
		}
	}
	return nil
}

package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"join_chat", `{"type":"join_chat","data":{"session_id":"abc"}}`, nil},
		{"send_message", `{"type":"send_message","data":{"session_id":"abc","content":"hello"}}`, nil},
		{"typing_false", `{"type":"typing","data":{"session_id":"abc","is_typing":false}}`, nil},
		{"therapy_message", `{"type":"send_therapy_message","data":{"session_id":3,"sender_id":"u1","sender_type":"user","content":"hi"}}`, nil},
		{"unknown_type", `{"type":"drop_tables","data":{}}`, ErrUnknownType},
		{"unknown_envelope_field", `{"type":"join_chat","data":{"session_id":"abc"},"extra":1}`, ErrMalformed},
		{"unknown_payload_field", `{"type":"join_chat","data":{"session_id":"abc","admin":true}}`, ErrMalformed},
		{"missing_data", `{"type":"join_chat"}`, ErrMalformed},
		{"null_data", `{"type":"join_chat","data":null}`, ErrMalformed},
		{"missing_session", `{"type":"join_chat","data":{}}`, ErrMalformed},
		{"empty_content", `{"type":"send_message","data":{"session_id":"abc","content":""}}`, ErrMalformed},
		{"bad_sender_type", `{"type":"send_therapy_message","data":{"session_id":3,"sender_id":"u1","sender_type":"robot","content":"hi"}}`, ErrMalformed},
		{"wrong_field_type", `{"type":"join_therapy_session","data":{"session_id":"three","user_id":"u1"}}`, ErrMalformed},
		{"not_json", `hello`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, payload, err := Decode([]byte(tt.frame))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, payload)
		})
	}
}

func TestDecodeReturnsTypedPayload(t *testing.T) {
	env, payload, err := Decode([]byte(`{"type":"send_message","data":{"session_id":"abc","content":"hello"}}`))
	require.NoError(t, err)
	assert.Equal(t, SendMessage, env.Type)

	p, ok := payload.(*SendMessagePayload)
	require.True(t, ok)
	assert.Equal(t, "abc", p.SessionID)
	assert.Equal(t, "hello", p.Content)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(Type("nope"), struct{}{})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestServerEventsDecode(t *testing.T) {
	env := ErrorEvent(CodeWaitTimeout, "no group available")
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	got, payload, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, Error, got.Type)
	assert.Equal(t, CodeWaitTimeout, payload.(*ErrorPayload).Code)
}

func TestIsClientType(t *testing.T) {
	assert.True(t, IsClientType(JoinChat))
	assert.True(t, IsClientType(SendTherapyMessage))
	assert.False(t, IsClientType(NewMessage))
	assert.False(t, IsClientType(Banned))
}

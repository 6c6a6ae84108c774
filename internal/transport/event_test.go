package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EnvelopesAgree(t *testing.T) {
	a, err := Normalize([]byte(`{"type":"new_message","data":{"id":"1","senderUsername":"bob","message":"hi"}}`))
	require.NoError(t, err)
	b, err := Normalize([]byte(`{"event":"new_message","payload":{"id":"1","senderUsername":"bob","message":"hi"}}`))
	require.NoError(t, err)

	assert.Equal(t, EventMessage, a.Kind)
	assert.Equal(t, a.Kind, b.Kind)
	assert.JSONEq(t, string(a.Payload), string(b.Payload))
}

func TestNormalize_FieldPriority(t *testing.T) {
	// "type" beats "event"; "data" beats "payload".
	ev, err := Normalize([]byte(`{"event":"deleted_user","type":"changed_user","payload":{"x":2},"data":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, EventUserChanged, ev.Kind)
	assert.JSONEq(t, `{"x":1}`, string(ev.Payload))
}

func TestNormalize_KnownNames(t *testing.T) {
	tests := map[string]EventKind{
		"new_message":     EventMessage,
		"changed_message": EventMessageChanged,
		"deleted_message": EventMessageDeleted,
		"new_login":       EventUserLogin,
		"changed_user":    EventUserChanged,
		"deleted_user":    EventUserDeleted,
		"start_typing":    EventKind("start_typing"),
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			ev, err := Normalize([]byte(`{"action":"` + name + `","content":{"id":"1"}}`))
			require.NoError(t, err)
			assert.Equal(t, want, ev.Kind)
			assert.Equal(t, name, ev.Name)
			assert.JSONEq(t, `{"id":"1"}`, string(ev.Payload))
		})
	}
}

func TestNormalize_ScalarPayloadFieldIsNotUnwrapped(t *testing.T) {
	frame := `{"type":"new_message","message":"hi","senderUsername":"bob"}`
	ev, err := Normalize([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, EventMessage, ev.Kind)
	assert.JSONEq(t, frame, string(ev.Payload))
}

func TestNormalize_Untyped(t *testing.T) {
	ev, err := Normalize([]byte(`{"senderUsername":"bob","message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, EventUntyped, ev.Kind)
	assert.Empty(t, ev.Name)
	assert.JSONEq(t, `{"senderUsername":"bob","message":"hi"}`, string(ev.Payload))

	ev, err = Normalize([]byte(`[1,2,3]`))
	require.NoError(t, err)
	assert.Equal(t, EventUntyped, ev.Kind)

	// A non-string type does not name an event.
	ev, err = Normalize([]byte(`{"type":7}`))
	require.NoError(t, err)
	assert.Equal(t, EventUntyped, ev.Kind)
}

func TestNormalize_LocalKindsNotTakenFromWire(t *testing.T) {
	for _, name := range []string{"connection", "terminal_failure", "untyped"} {
		t.Run(name, func(t *testing.T) {
			ev, err := Normalize([]byte(`{"type":"` + name + `","data":{"connected":false}}`))
			require.NoError(t, err)
			assert.Equal(t, EventUntyped, ev.Kind)
			assert.Equal(t, name, ev.Name)
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	_, err := Normalize([]byte(`{"type":`))
	require.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base, token, want string
	}{
		{"http://localhost:3000", "abc", "ws://localhost:3000/ws?token=abc"},
		{"https://chat.example.com", "", "wss://chat.example.com/ws"},
		{"https://chat.example.com/realtime", "a b", "wss://chat.example.com/realtime?token=a+b"},
		{"wss://chat.example.com/socket?v=2", "t", "wss://chat.example.com/socket?token=t&v=2"},
		{"localhost:3000", "t", "ws://localhost:3000/ws?token=t"},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.base, tt.token)
		require.NoError(t, err, tt.base)
		assert.Equal(t, tt.want, got)
	}

	_, err := Endpoint("ftp://example.com", "")
	require.Error(t, err)
}

func TestSubscriptions(t *testing.T) {
	var s subscriptions
	var msgs, all int
	unsubMsg := s.add(EventMessage, func(Event) { msgs++ })
	unsubAll := s.add(anyKind, func(Event) { all++ })
	assert.Equal(t, 2, s.count())

	s.publish(Event{Kind: EventMessage})
	s.publish(Event{Kind: EventUserLogin})
	assert.Equal(t, 1, msgs)
	assert.Equal(t, 2, all)

	unsubMsg()
	unsubMsg()
	s.publish(Event{Kind: EventMessage})
	assert.Equal(t, 1, msgs)
	assert.Equal(t, 3, all)

	unsubAll()
	assert.Equal(t, 0, s.count())
}

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_Shapes(t *testing.T) {
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
	}{
		{"canonical", `{"id":"m1","senderUsername":"alice","message":"hi","createdAt":"2025-03-01T12:00:00Z"}`},
		{"snake case", `{"_id":"m1","username":"alice","content":"hi","created_at":"2025-03-01 12:00:00"}`},
		{"numeric id and unix millis", `{"id":"m1","sender":"alice","text":"hi","timestamp":1740830400000}`},
		{"nested user", `{"messageId":"m1","user":{"username":"alice"},"body":"hi","timestamp":1740830400}`},
		{"wrapped", `{"message":{"id":"m1","senderUsername":"alice","message":"hi","createdAt":"2025-03-01T12:00:00Z"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMessage([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, "m1", m.ID)
			assert.Equal(t, "alice", m.Sender)
			assert.Equal(t, "hi", m.Body)
			assert.True(t, want.Equal(m.CreatedAt), "got %s", m.CreatedAt)
		})
	}
}

func TestDecodeMessage_NumericID(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"id":42,"senderUsername":"bob","message":"yo"}`))
	require.NoError(t, err)
	assert.Equal(t, "42", m.ID)
	assert.True(t, m.CreatedAt.IsZero())
}

func TestDecodeMessage_Rejects(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"id":"x"}`))
	require.ErrorIs(t, err, ErrNotAMessage)

	_, err = DecodeMessage([]byte(`[1,2]`))
	require.Error(t, err)

	_, err = DecodeMessage([]byte(`{not json`))
	require.Error(t, err)
}

func TestDecodeMessages_ListShapes(t *testing.T) {
	bare := `[{"id":"1","senderUsername":"a","message":"x"},{"junk":true},{"id":"2","senderUsername":"b","message":"y"}]`
	msgs, err := DecodeMessages([]byte(bare))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[1].ID)

	wrapped := `{"messages":[{"id":"1","senderUsername":"a","message":"x"}]}`
	msgs, err = DecodeMessages([]byte(wrapped))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msgs, err = DecodeMessages([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDecodeUsers(t *testing.T) {
	users, err := DecodeUsers([]byte(`[{"id":7,"username":"alice"},{"_id":"u2","name":"bob"},{"id":3}]`))
	require.NoError(t, err)
	assert.Equal(t, []User{{ID: "7", Username: "alice"}, {ID: "u2", Username: "bob"}}, users)
}

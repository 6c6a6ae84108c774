package mockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New("test-secret")
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return srv, ts
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func login(t *testing.T, base, name string) string {
	t.Helper()
	resp := postJSON(t, base+"/auth/register", "", credentials{Username: name, Password: "pw"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, base+"/auth/login", "", credentials{Username: name, Password: "pw"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token  string `json:"token"`
		UserID int    `json:"userId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	require.NotZero(t, out.UserID)
	return out.Token
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/auth/register", "", credentials{Username: "alice", Password: "pw"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/auth/register", "", credentials{Username: "alice", Password: "other"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegister_MissingFields(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/auth/register", "", credentials{Username: "alice"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_WrongPassword(t *testing.T) {
	_, ts := newTestServer(t)
	login(t, ts.URL, "alice")

	resp := postJSON(t, ts.URL+"/auth/login", "", credentials{Username: "alice", Password: "nope"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	_, ts := newTestServer(t)
	for _, path := range []string{"/users", "/messages"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestMessages_GlobalFeedHasNoRecipient(t *testing.T) {
	_, ts := newTestServer(t)
	tok := login(t, ts.URL, "alice")

	resp := postJSON(t, ts.URL+"/messages?recipient=bob", tok, map[string]string{"message": "hi"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var feed []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&feed))
	require.Len(t, feed, 1)
	assert.Equal(t, "alice", feed[0]["senderUsername"])
	assert.Equal(t, "hi", feed[0]["message"])
	assert.NotContains(t, feed[0], "recipient")
}

func TestSendMessage_EmptyRejected(t *testing.T) {
	_, ts := newTestServer(t)
	tok := login(t, ts.URL, "alice")
	resp := postJSON(t, ts.URL+"/messages", tok, map[string]string{"message": "  "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocket_BroadcastsNewMessages(t *testing.T) {
	srv, ts := newTestServer(t)
	aliceTok := login(t, ts.URL, "alice")
	bobTok := login(t, ts.URL, "bob")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + bobTok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Hub().Connected() == 1 }, time.Second, 10*time.Millisecond)

	resp := postJSON(t, ts.URL+"/messages?recipient=bob", aliceTok, map[string]string{"message": "hello"})
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type string `json:"type"`
		Data struct {
			Sender string `json:"senderUsername"`
			Body   string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "new_message", got.Type)
	assert.Equal(t, "alice", got.Data.Sender)
	assert.Equal(t, "hello", got.Data.Body)
}

func TestWebSocket_RelaysTypingToRecipientOnly(t *testing.T) {
	srv, ts := newTestServer(t)
	aliceTok := login(t, ts.URL, "alice")
	bobTok := login(t, ts.URL, "bob")

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token="
	alice, _, err := websocket.DefaultDialer.Dial(base+aliceTok, nil)
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := websocket.DefaultDialer.Dial(base+bobTok, nil)
	require.NoError(t, err)
	defer bob.Close()
	require.Eventually(t, func() bool { return srv.Hub().Connected() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "start_typing", "data": map[string]string{"recipient": "bob"}}))

	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type string        `json:"type"`
		Data typingPayload `json:"data"`
	}
	require.NoError(t, bob.ReadJSON(&got))
	assert.Equal(t, "typing", got.Type)
	assert.Equal(t, typingPayload{Username: "alice", Typing: true}, got.Data)
}

func TestValidateToken_RejectsForeignSecret(t *testing.T) {
	a := newAccounts("one", time.Now)
	b := newAccounts("two", time.Now)
	_, err := a.register("alice", "pw")
	require.NoError(t, err)
	tok, _, err := a.login("alice", "pw")
	require.NoError(t, err)

	id, name, err := a.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, "alice", name)

	_, _, err = b.ValidateToken(tok)
	assert.Error(t, err)
}

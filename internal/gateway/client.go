// Package gateway is the client for the chat backend's HTTP API.
//
// The API is fixed and loosely defined: responses come in several shapes,
// and the message feed is global, with no notion of a recipient. The gateway
// smooths over the shapes and maps every failure to a *Error whose Kind is a
// user-visible condition. It never retries writes.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/i18n"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/session"
)

const (
	DefaultTimeout = 15 * time.Second

	// maxBodySize bounds what we read from any response.
	maxBodySize = 4 << 20

	opRegister = "register"
	opLogin    = "login"
	opUsers    = "users"
	opMessages = "messages"
	opSend     = "send"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sendRequest struct {
	Message string `json:"message"`
}

// AuthResult is a login or registration outcome. Token is empty when the
// backend registered the user without logging them in.
type AuthResult struct {
	Token string
	User  chat.User
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if req.Username == "" || req.Password == "" {
		return nil, &Error{Op: opRegister, Kind: i18n.Validation, Message: "username and password are required"}
	}
	raw, err := c.do(ctx, opRegister, http.MethodPost, "/auth/register", nil, req)
	if err != nil {
		return nil, err
	}
	res, err := decodeAuth(opRegister, raw, req.Username)
	if err != nil {
		return nil, err
	}
	if res.Token != "" {
		c.SetToken(res.Token)
	}
	return res, nil
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return nil, &Error{Op: opLogin, Kind: i18n.Validation, Message: "username and password are required"}
	}
	raw, err := c.do(ctx, opLogin, http.MethodPost, "/auth/login", nil, loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	res, err := decodeAuth(opLogin, raw, username)
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, &Error{Op: opLogin, Kind: i18n.Unknown, Message: "login response carried no token"}
	}
	c.SetToken(res.Token)
	return res, nil
}

func (c *Client) Users(ctx context.Context) ([]chat.User, error) {
	raw, err := c.do(ctx, opUsers, http.MethodGet, "/users", nil, nil)
	if err != nil {
		return nil, err
	}
	users, err := chat.DecodeUsers(raw)
	if err != nil {
		return nil, &Error{Op: opUsers, Kind: i18n.Unknown, Err: err}
	}
	return users, nil
}

// Messages fetches the whole global feed, unfiltered.
func (c *Client) Messages(ctx context.Context) ([]chat.Message, error) {
	raw, err := c.do(ctx, opMessages, http.MethodGet, "/messages", nil, nil)
	if err != nil {
		return nil, err
	}
	msgs, err := chat.DecodeMessages(raw)
	if err != nil {
		return nil, &Error{Op: opMessages, Kind: i18n.Unknown, Err: err}
	}
	return msgs, nil
}

// SendMessage posts body for recipient. The recipient travels as a query
// parameter and is not part of the stored message.
func (c *Client) SendMessage(ctx context.Context, body, recipient string) (chat.Message, error) {
	if strings.TrimSpace(body) == "" {
		return chat.Message{}, &Error{Op: opSend, Kind: i18n.Validation, Message: "empty message"}
	}
	q := url.Values{}
	if recipient != "" {
		q.Set("recipient", recipient)
	}
	raw, err := c.do(ctx, opSend, http.MethodPost, "/messages", q, sendRequest{Message: body})
	if err != nil {
		return chat.Message{}, err
	}

	msg, err := decodeSent(raw)
	if err != nil && !errors.Is(err, chat.ErrNotAMessage) {
		// Accepted but unreadable: keep what we know.
		log.Warn().Err(err).Msg("[gateway] unreadable send response")
	}
	if msg.Body == "" {
		msg.Body = body
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return msg, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, &Error{Op: op, Kind: i18n.Unknown, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &Error{Op: op, Kind: i18n.Unknown, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &Error{Op: op, Kind: i18n.ServerUnavailable, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Op: op, Kind: i18n.ServerUnavailable, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{Op: op, Kind: kindForStatus(op, resp.StatusCode), Status: resp.StatusCode, Message: serverMessage(raw)}
		log.Debug().Str("op", op).Int("status", resp.StatusCode).Str("message", e.Message).Msg("[gateway] request rejected")
		return nil, e
	}
	return raw, nil
}

// serverMessage pulls an explanation out of an error body.
func serverMessage(raw []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, k := range []string{"error", "message", "detail"} {
			if s, ok := obj[k].(string); ok && s != "" {
				return s
			}
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// decodeAuth reads {token, user|userId} and {success|user, token}. Missing
// identity fields are filled from the token's claims, then from the
// username the caller submitted.
func decodeAuth(op string, raw []byte, username string) (*AuthResult, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &Error{Op: op, Kind: i18n.Unknown, Err: fmt.Errorf("decode auth response: %w", err)}
	}

	res := &AuthResult{}
	for _, k := range []string{"token", "access_token", "accessToken"} {
		var s string
		if v, ok := obj[k]; ok && json.Unmarshal(v, &s) == nil && s != "" {
			res.Token = s
			break
		}
	}

	if v, ok := obj["user"]; ok {
		if u, err := chat.DecodeUser(v); err == nil {
			res.User = u
		}
	}
	if res.User.ID == "" {
		// Top-level userId; null and empty values do not count.
		if top, err := chat.DecodeUser(raw); err == nil {
			res.User.ID = top.ID
		}
	}
	if (res.User.ID == "" || res.User.Username == "") && res.Token != "" {
		if claims, err := session.ParseClaims(res.Token); err == nil {
			if res.User.ID == "" {
				res.User.ID = claims.UserID
			}
			if res.User.Username == "" {
				res.User.Username = claims.Username
			}
		}
	}
	if res.User.Username == "" {
		res.User.Username = username
	}
	return res, nil
}

func decodeSent(raw []byte) (chat.Message, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return chat.Message{}, err
	}
	if data, ok := obj["data"]; ok {
		if m, err := chat.DecodeMessage(data); err == nil {
			return m, nil
		}
	}
	return chat.DecodeMessage(raw)
}

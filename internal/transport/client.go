// Package transport keeps one live WebSocket connection to the chat
// backend's real-time endpoint.
//
// The Client reconnects after abnormal closes with a linearly growing delay
// and gives up for good after a fixed number of attempts. Inbound frames are
// normalized into Event values and fanned out to subscribers. Sending is
// best-effort: the HTTP API is the authoritative write path, so nothing here
// ever returns a send error to the caller.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 1 << 20
	sendBufferSize = 64

	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultStaleAfter           = 15 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPongWait             = 60 * time.Second
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnecting
	// StateClosed is terminal: the retry budget is spent. Only an explicit
	// Connect leaves it.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Config struct {
	// URL is the backend base URL. http(s) schemes are translated to ws(s).
	URL   string
	Token string

	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	StaleAfter           time.Duration
	PingInterval         time.Duration
	PongWait             time.Duration
}

func (c *Config) setDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithClock replaces time.Now for staleness bookkeeping.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	now    func() time.Time
	subs   subscriptions

	mu        sync.Mutex
	ctx       context.Context
	state     State
	conn      *websocket.Conn
	send      chan []byte
	attempts  int
	lastFrame time.Time
	timer     *time.Timer
	closing   *websocket.Conn
}

func New(cfg Config, opts ...Option) *Client {
	cfg.setDefaults()
	c := &Client{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		now:    time.Now,
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint builds the real-time URL from a base URL and a session token.
func Endpoint(base, token string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "ws://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("transport: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// IsStale reports a transport that cannot be trusted to deliver: either not
// open, or open but silent for longer than StaleAfter.
func (c *Client) IsStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return true
	}
	return c.now().Sub(c.lastFrame) > c.cfg.StaleAfter
}

// Subscribe registers h for one event kind. The returned func removes it.
func (c *Client) Subscribe(kind EventKind, h Handler) (unsubscribe func()) {
	return c.subs.add(kind, h)
}

// SubscribeAll registers h for every event.
func (c *Client) SubscribeAll(h Handler) (unsubscribe func()) {
	return c.subs.add(anyKind, h)
}

// Connect starts connecting in the background. It does nothing while a
// connection is being made or is open. ctx bounds the whole session,
// reconnects included.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.ctx = ctx
	c.attempts = 0
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial()
}

// Disconnect closes the connection normally. No reconnect follows.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	wasOpen := c.conn != nil
	if c.send != nil {
		// the write pump sends the close frame and closes the socket
		close(c.send)
		c.send = nil
	}
	if wasOpen {
		c.closing = c.conn
		c.state = StateClosing
	} else {
		c.state = StateIdle
	}
	c.conn = nil
	c.mu.Unlock()

	if wasOpen {
		log.Info().Msg("[transport] disconnected")
		c.subs.publish(Event{Kind: EventConnection, Connected: false})
	}
}

// Send queues v as one JSON frame. When the connection is not open the frame
// is dropped and logged. When the queue is full the oldest frame is dropped.
func (c *Client) Send(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("[transport] encode frame")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen || c.send == nil {
		log.Debug().Str("state", c.state.String()).Msg("[transport] not open, dropping frame")
		return
	}
	select {
	case c.send <- frame:
	default:
		select {
		case <-c.send:
		default:
		}
		c.send <- frame
	}
}

func (c *Client) dial() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	endpoint, err := Endpoint(c.cfg.URL, c.cfg.Token)
	if err == nil {
		var conn *websocket.Conn
		conn, _, err = c.dialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			c.opened(conn)
			return
		}
	}
	log.Warn().Err(err).Msg("[transport] dial failed")
	c.closed(nil, websocket.CloseAbnormalClosure, err)
}

func (c *Client) opened(conn *websocket.Conn) {
	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect won the race.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	send := make(chan []byte, sendBufferSize)
	c.conn = conn
	c.send = send
	c.state = StateOpen
	c.attempts = 0
	c.lastFrame = c.now()
	c.mu.Unlock()

	log.Info().Msg("[transport] connected")
	c.subs.publish(Event{Kind: EventConnection, Connected: true})
	c.handshake()

	go c.writePump(conn, send)
	go c.readPump(conn)
}

// closed handles the end of conn, or a failed dial when conn is nil.
func (c *Client) closed(conn *websocket.Conn, code int, err error) {
	c.mu.Lock()
	if c.conn != conn || (conn == nil && c.state != StateConnecting) {
		// Superseded by Disconnect or a newer connection.
		c.mu.Unlock()
		return
	}
	wasOpen := conn != nil
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
	c.conn = nil

	var events []Event
	if wasOpen {
		events = append(events, Event{Kind: EventConnection, Connected: false, Err: err})
	}
	switch {
	case code == websocket.CloseNormalClosure || c.ctx.Err() != nil:
		c.state = StateIdle
	case c.attempts >= c.cfg.MaxReconnectAttempts:
		c.state = StateClosed
		events = append(events, Event{Kind: EventTerminalFailure, Err: err})
		log.Error().Err(err).Int("attempts", c.attempts).Msg("[transport] giving up")
	default:
		c.attempts++
		delay := c.cfg.ReconnectDelay * time.Duration(c.attempts)
		c.state = StateReconnecting
		c.timer = time.AfterFunc(delay, c.reconnect)
		log.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("[transport] reconnect scheduled")
	}
	c.mu.Unlock()

	for _, ev := range events {
		c.subs.publish(ev)
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateConnecting
	c.mu.Unlock()

	c.dial()
}

// readPump pumps frames from the connection to subscribers.
func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Int("code", code).Msg("[transport] connection lost")
			}
			c.closed(conn, code, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.receive(frame)
	}
}

func (c *Client) receive(frame []byte) {
	ev, err := Normalize(frame)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(frame)).Msg("[transport] dropping malformed frame")
		return
	}
	c.mu.Lock()
	c.lastFrame = c.now()
	c.mu.Unlock()
	c.subs.publish(ev)
}

// writePump pumps queued frames to the connection and keeps it alive with
// pings. Closing send ends it with a normal close frame.
func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		c.mu.Lock()
		if c.closing == conn {
			c.closing = nil
			if c.state == StateClosing {
				c.state = StateIdle
			}
		}
		c.mu.Unlock()
	}()

	for {
		select {
		case frame, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Msg("[transport] write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

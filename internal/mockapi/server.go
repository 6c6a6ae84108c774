// Package mockapi is an in-memory stand-in for the chat backend. It speaks
// the same contract the client consumes: JWT auth, a user list, one global
// message feed with no recipients, and a WebSocket that pushes new messages
// and logins to everyone.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Option func(*Server)

// WithClock replaces time.Now for message timestamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

type Server struct {
	now      func() time.Time
	accounts *accounts
	feed     *feed
	hub      *Hub
}

func New(secret string, opts ...Option) *Server {
	s := &Server{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.accounts = newAccounts(secret, s.now)
	s.feed = &feed{now: s.now}
	s.hub = newHub()
	return s
}

// Run drives the socket hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	auth := authMiddleware{validator: s.accounts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Post("/auth/register", s.register)
	r.Post("/auth/login", s.login)

	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Get("/users", s.users)
		r.Get("/messages", s.messages)
		r.Post("/messages", s.sendMessage)
		r.Get("/ws", s.serveWs)
	})
	return r
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type userJSON struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.accounts.register(req.Username, req.Password)
	switch {
	case errors.Is(err, ErrMissingFields):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Info().Str("user", u.Username).Int("id", u.ID).Msg("[mockapi] registered")
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    userJSON{ID: u.ID, Username: u.Username},
	})
}

// login answers {token, userId}; clients read the username from the token.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, u, err := s.accounts.login(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		return
	}
	s.hub.Broadcast("new_login", userJSON{ID: u.ID, Username: u.Username})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":  token,
		"userId": u.ID,
	})
}

func (s *Server) users(w http.ResponseWriter, r *http.Request) {
	all := s.accounts.list()
	out := make([]userJSON, 0, len(all))
	for _, u := range all {
		out = append(out, userJSON{ID: u.ID, Username: u.Username})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.recent())
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	_, username, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	msg := s.feed.save(username, req.Message)
	log.Debug().Str("from", username).Str("recipient", r.URL.Query().Get("recipient")).Str("id", msg.ID).Msg("[mockapi] message stored")
	s.hub.Broadcast("new_message", msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	_, username, ok := identity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[mockapi] upgrade failed")
		return
	}

	c := &wsClient{hub: s.hub, conn: conn, send: make(chan []byte, 256), username: username}
	if !s.hub.join(c) {
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("[mockapi] write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// accessLog is chi's request logger, written through zerolog.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("[mockapi] request")
	})
}

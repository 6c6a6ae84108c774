// Package session persists the logged-in identity between runs.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/kv"
)

const storeKey = "session"

// ErrNoSession is returned by Load when nobody is logged in.
var ErrNoSession = errors.New("session: not logged in")

type Session struct {
	Token  string    `json:"token"`
	UserID string    `json:"userId"`
	User   chat.User `json:"userData"`
}

// Expired reports whether the token's exp claim is in the past. Tokens
// without a readable exp never expire on the client side.
func (s Session) Expired(now time.Time) bool {
	claims, err := ParseClaims(s.Token)
	if err != nil || claims.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(claims.ExpiresAt)
}

type Store struct {
	kv kv.Store
}

func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

func (s *Store) Load() (Session, error) {
	raw, err := s.kv.Get(storeKey)
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: load: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.Token == "" {
		log.Warn().Err(err).Msg("[session] unreadable session, ignoring")
		return Session{}, ErrNoSession
	}
	return sess, nil
}

func (s *Store) Save(sess Session) error {
	if sess.Token == "" {
		return errors.New("session: empty token")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.kv.Set(storeKey, raw)
}

func (s *Store) Clear() error {
	return s.kv.Delete(storeKey)
}

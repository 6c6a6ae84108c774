package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/attribution"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/gateway"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/i18n"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/kv"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/session"
)

// condition is a failure the user should see in their language.
type condition i18n.Key

func (c condition) Error() string        { return string(c) }
func (c condition) MessageKey() i18n.Key { return i18n.Key(c) }

// app is what every command needs: the local store, the saved session and
// a gateway client.
type app struct {
	store    kv.Store
	sessions *session.Store
	gw       *gateway.Client
}

func openApp() (*app, error) {
	dir := filepath.Join(cfg.DataDir, "store")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := kv.OpenPebble(dir)
	if err != nil {
		return nil, err
	}
	return &app{
		store:    store,
		sessions: session.NewStore(store),
		gw:       gateway.New(cfg.APIURL, gateway.WithTimeout(cfg.RequestTimeout.Duration)),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// requireSession loads the saved login and arms the gateway with its token.
func (a *app) requireSession() (session.Session, error) {
	sess, err := a.sessions.Load()
	if errors.Is(err, session.ErrNoSession) {
		return session.Session{}, condition(i18n.NotLoggedIn)
	}
	if err != nil {
		return session.Session{}, err
	}
	if sess.Expired(time.Now()) {
		_ = a.sessions.Clear()
		return session.Session{}, condition(i18n.SessionExpired)
	}
	a.gw.SetToken(sess.Token)
	return sess, nil
}

func (a *app) openCache(self string) (*attribution.Cache, error) {
	mode, err := attribution.ParseKeyMode(cfg.AttributionKey)
	if err != nil {
		return nil, err
	}
	return attribution.Open(a.store, self,
		attribution.WithKeyMode(mode),
		attribution.WithRetention(cfg.AttributionRetention.Duration),
	)
}

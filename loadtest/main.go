package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/gateway"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/transport"
)

var (
	baseURL  = flag.String("url", "http://localhost:8080", "backend base URL")
	pairs    = flag.Int("pairs", 50, "number of user pairs (2 users each)")
	msgCount = flag.Int("msgs", 20, "messages per user")
	settle   = flag.Duration("settle", 3*time.Second, "how long to wait for pushes after the last send")
)

type stats struct {
	sent     atomic.Int64
	failed   atomic.Int64
	received atomic.Int64
}

func main() {
	flag.Parse()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	log.Info().Int("users", *pairs*2).Int("msgs", *msgCount).Msg("starting load test")
	var st stats
	start := time.Now()

	g, ctx := errgroup.WithContext(context.Background())
	run := fmt.Sprintf("%d", time.Now().Unix())
	// We create pairs: user 0 talks to user 1, user 2 talks to user 3...
	for i := 0; i < *pairs; i++ {
		pairID := i
		g.Go(func() error {
			return runPair(ctx, run, pairID, &st)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("load test aborted")
	}

	log.Info().
		Int64("sent", st.sent.Load()).
		Int64("failed", st.failed.Load()).
		Int64("pushed_from_peer", st.received.Load()).
		Dur("took", time.Since(start)).
		Msg("load test complete")
}

func runPair(ctx context.Context, run string, pairID int, st *stats) error {
	userA := fmt.Sprintf("u_%s_%d_a", run, pairID)
	userB := fmt.Sprintf("u_%s_%d_b", run, pairID)

	gwA, err := authenticate(ctx, userA)
	if err != nil {
		return err
	}
	gwB, err := authenticate(ctx, userB)
	if err != nil {
		return err
	}

	trA := listen(ctx, gwA.Token(), userB, st)
	trB := listen(ctx, gwB.Token(), userA, st)
	defer trA.Disconnect()
	defer trB.Disconnect()

	var g errgroup.Group
	g.Go(func() error { return spam(ctx, gwA, userA, userB, st) })
	g.Go(func() error { return spam(ctx, gwB, userB, userA, st) })
	if err := g.Wait(); err != nil {
		return err
	}

	select {
	case <-time.After(*settle):
	case <-ctx.Done():
	}
	return nil
}

// authenticate registers (ignoring an existing account) and logs in.
func authenticate(ctx context.Context, username string) (*gateway.Client, error) {
	const password = "password123"
	gw := gateway.New(*baseURL)
	if _, err := gw.Register(ctx, gateway.RegisterRequest{Username: username, Password: password}); err != nil && !errors.Is(err, gateway.ErrConflict) {
		return nil, fmt.Errorf("register %s: %w", username, err)
	}
	if _, err := gw.Login(ctx, username, password); err != nil {
		return nil, fmt.Errorf("login %s: %w", username, err)
	}
	return gw, nil
}

// listen opens a transport and counts pushed messages from peer.
func listen(ctx context.Context, token, peer string, st *stats) *transport.Client {
	tr := transport.New(transport.Config{URL: *baseURL, Token: token})
	tr.Subscribe(transport.EventMessage, func(ev transport.Event) {
		m, err := chat.DecodeMessage(ev.Payload)
		if err == nil && m.Sender == peer {
			st.received.Add(1)
		}
	})
	tr.Connect(ctx)
	return tr
}

func spam(ctx context.Context, gw *gateway.Client, from, to string, st *stats) error {
	for i := 0; i < *msgCount; i++ {
		_, err := gw.SendMessage(ctx, fmt.Sprintf("LoadTest Msg %d from %s", i, from), to)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.failed.Add(1)
			log.Warn().Err(err).Str("user", from).Msg("send failed")
			continue
		}
		st.sent.Add(1)
		// Small sleep to simulate a real network.
		time.Sleep(10 * time.Millisecond)
	}
	log.Debug().Str("user", from).Int("msgs", *msgCount).Msg("finished sending")
	return nil
}

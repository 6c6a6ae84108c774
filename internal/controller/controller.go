// Package controller ties the gateway, the transport and the attribution
// cache together for one logged-in user.
//
// All mutable state (selected peer, reconciled feed, user list) belongs to
// the goroutine running Run. Network calls happen on short-lived goroutines
// and post their results back into the loop; public methods post commands.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/chat"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/conversation"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/i18n"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/transport"
)

const (
	DefaultPollInterval   = 3 * time.Second
	DefaultTypingInterval = 2 * time.Second

	eventBuffer = 64
)

var (
	ErrStopped   = errors.New("controller: not running")
	ErrRunning   = errors.New("controller: already running")
	ErrNoPeer    = keyedError{key: i18n.NoPeer}
	ErrEmptyBody = keyedError{key: i18n.EmptyMessage}
)

type keyedError struct{ key i18n.Key }

func (e keyedError) Error() string        { return "controller: " + string(e.key) }
func (e keyedError) MessageKey() i18n.Key { return e.key }

type Gateway interface {
	Users(ctx context.Context) ([]chat.User, error)
	Messages(ctx context.Context) ([]chat.Message, error)
	SendMessage(ctx context.Context, body, recipient string) (chat.Message, error)
}

type Transport interface {
	Connect(ctx context.Context)
	Disconnect()
	IsStale() bool
	SendMessage(body, recipient string)
	SendTyping(recipient string, typing bool)
	Subscribe(kind transport.EventKind, h transport.Handler) (unsubscribe func())
}

// Attribution is the sent-message cache for the logged-in user.
type Attribution interface {
	Record(peer string, msg chat.Message) error
	IsAttributedTo(msg chat.Message, peer string) bool
}

// Renderer shows state. Every call comes from the Run goroutine.
type Renderer interface {
	RenderUsers(users []chat.User)
	RenderConversation(peer chat.User, msgs []chat.Message)
	RenderTyping(user string, typing bool)
	RenderStatus(text string)
	RenderError(text string)
}

type Options struct {
	Self      chat.User
	Gateway   Gateway
	Transport Transport
	Cache     Attribution
	Renderer  Renderer
	Lang      string

	PollInterval time.Duration
	// TypingInterval is the minimum gap between two start_typing frames.
	TypingInterval time.Duration
}

type fetchResult struct {
	gen  uint64
	mark uint64 // feed position when the fetch was issued
	msgs []chat.Message
	err  error
}

type usersResult struct {
	users []chat.User
	err   error
}

type sendStart struct {
	reply chan chat.User
}

type sendDone struct {
	peer chat.User
	msg  chat.Message
	done chan struct{}
}

type Controller struct {
	self     chat.User
	gw       Gateway
	tr       Transport
	cache    Attribution
	render   Renderer
	lang     string
	poll     time.Duration
	typingRL *rate.Limiter

	running atomic.Bool
	done    chan struct{}

	// serializes cache writes from Send once Run has returned
	lateMu sync.Mutex

	selectPeer chan chat.User
	sendStart  chan sendStart
	sendDone   chan sendDone
	typing     chan bool
	refresh    chan struct{}
	events     chan transport.Event
	fetched    chan fetchResult
	usersIn    chan usersResult

	// Owned by Run.
	ctx          context.Context
	peer         chat.User
	gen          uint64
	feed         *conversation.Feed
	users        []chat.User
	fetching     int
	typingActive bool
}

func New(opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = DefaultTypingInterval
	}
	if opts.Lang == "" {
		opts.Lang = i18n.DefaultLang
	}
	return &Controller{
		self:     opts.Self,
		gw:       opts.Gateway,
		tr:       opts.Transport,
		cache:    opts.Cache,
		render:   opts.Renderer,
		lang:     opts.Lang,
		poll:     opts.PollInterval,
		typingRL: rate.NewLimiter(rate.Every(opts.TypingInterval), 1),

		done:       make(chan struct{}),
		selectPeer: make(chan chat.User, 8),
		sendStart:  make(chan sendStart),
		sendDone:   make(chan sendDone),
		typing:     make(chan bool, 8),
		refresh:    make(chan struct{}, 1),
		events:     make(chan transport.Event, eventBuffer),
		fetched:    make(chan fetchResult, 8),
		usersIn:    make(chan usersResult, 2),

		feed: conversation.NewFeed(),
	}
}

// Run connects the transport and serves until ctx is done. It can be called
// once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	c.ctx = ctx

	var unsubs []func()
	for _, kind := range []transport.EventKind{
		transport.EventMessage,
		transport.EventMessageChanged,
		transport.EventMessageDeleted,
		transport.EventUserLogin,
		transport.EventUserChanged,
		transport.EventUserDeleted,
		transport.EventConnection,
		transport.EventTerminalFailure,
		transport.EventUntyped,
		eventTyping,
	} {
		unsubs = append(unsubs, c.tr.Subscribe(kind, c.enqueue))
	}

	ticker := time.NewTicker(c.poll)
	defer func() {
		for _, u := range unsubs {
			u()
		}
		ticker.Stop()
		c.tr.Disconnect()
		close(c.done)
		log.Debug().Msg("[controller] stopped")
	}()

	c.tr.Connect(ctx)
	c.fetchUsers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case peer := <-c.selectPeer:
			c.onSelect(peer)

		case req := <-c.sendStart:
			req.reply <- c.peer

		case res := <-c.sendDone:
			c.onSent(res)

		case typing := <-c.typing:
			c.onTyping(typing)

		case <-c.refresh:
			c.fetchUsers()

		case ev := <-c.events:
			c.onEvent(ev)

		case res := <-c.fetched:
			c.onFetched(res)

		case res := <-c.usersIn:
			c.onUsers(res)

		case <-ticker.C:
			if !c.peer.IsZero() && c.fetching == 0 && c.tr.IsStale() {
				log.Debug().Msg("[controller] transport stale, polling")
				c.fetchMessages()
			}
		}
	}
}

// SelectPeer switches the conversation. Results of fetches issued for an
// earlier selection are discarded.
func (c *Controller) SelectPeer(peer chat.User) error {
	if peer.IsZero() {
		return ErrNoPeer
	}
	if c.stopped() {
		return ErrStopped
	}
	select {
	case c.selectPeer <- peer:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// Send writes body to the selected peer through the gateway. The message is
// attributed to the peer only after the gateway accepted it; a failed send
// changes nothing and returns the gateway's error.
func (c *Controller) Send(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}

	reply := make(chan chat.User, 1)
	select {
	case c.sendStart <- sendStart{reply: reply}:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	peer := <-reply
	if peer.IsZero() {
		return ErrNoPeer
	}

	msg, err := c.gw.SendMessage(ctx, body, peer.Username)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	select {
	case c.sendDone <- sendDone{peer: peer, msg: msg, done: done}:
	case <-c.done:
		// Stopped mid-send. The backend has the message, so it still gets
		// attributed; the loop no longer owns the cache.
		c.recordAfterStop(peer, msg)
		return nil
	}
	// Once received, onSent always runs to completion before the loop exits.
	<-done
	return nil
}

func (c *Controller) recordAfterStop(peer chat.User, msg chat.Message) {
	c.lateMu.Lock()
	defer c.lateMu.Unlock()
	if msg.Sender == "" {
		msg.Sender = c.self.Username
	}
	if err := c.cache.Record(peer.Username, msg); err != nil {
		log.Error().Err(err).Str("peer", peer.Username).Msg("[controller] attribution not saved after stop")
	}
}

// SetTyping reports typing state to the selected peer. Start frames are
// rate limited; a stop frame follows only a start.
func (c *Controller) SetTyping(typing bool) {
	if c.stopped() {
		return
	}
	select {
	case c.typing <- typing:
	case <-c.done:
	default:
		// Loop busy: typing state is disposable.
	}
}

func (c *Controller) RefreshUsers(ctx context.Context) error {
	if c.stopped() {
		return ErrStopped
	}
	select {
	case c.refresh <- struct{}{}:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	default:
		// A refresh is already queued.
		return nil
	}
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Controller) enqueue(ev transport.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) onSelect(peer chat.User) {
	if c.typingActive && !c.peer.IsZero() {
		c.tr.SendTyping(c.peer.Username, false)
		c.typingActive = false
	}
	c.peer = peer
	c.gen++
	log.Debug().Str("peer", peer.Username).Uint64("gen", c.gen).Msg("[controller] peer selected")
	c.rebuild()
	c.fetchMessages()
}

func (c *Controller) onSent(res sendDone) {
	msg := res.msg
	if msg.Sender == "" {
		msg.Sender = c.self.Username
	}
	if err := c.cache.Record(res.peer.Username, msg); err != nil {
		log.Error().Err(err).Str("peer", res.peer.Username).Msg("[controller] attribution not saved")
	}
	c.tr.SendMessage(msg.Body, res.peer.Username)
	c.feed.Upsert(msg)
	if c.typingActive {
		c.tr.SendTyping(res.peer.Username, false)
		c.typingActive = false
	}
	if res.peer.Username == c.peer.Username {
		c.rebuild()
	}
	close(res.done)
}

func (c *Controller) onTyping(typing bool) {
	if c.peer.IsZero() {
		return
	}
	if !typing {
		if c.typingActive {
			c.tr.SendTyping(c.peer.Username, false)
			c.typingActive = false
		}
		return
	}
	if c.typingRL.Allow() {
		c.tr.SendTyping(c.peer.Username, true)
		c.typingActive = true
	}
}

func (c *Controller) onFetched(res fetchResult) {
	c.fetching--
	if res.gen != c.gen {
		log.Debug().Uint64("gen", res.gen).Uint64("current", c.gen).Msg("[controller] discarding stale fetch")
		return
	}
	if res.err != nil {
		c.showError(res.err)
		return
	}
	c.feed.Replace(res.msgs, res.mark)
	c.rebuild()
}

func (c *Controller) onUsers(res usersResult) {
	if res.err != nil {
		c.showError(res.err)
		return
	}
	c.users = res.users
	c.render.RenderUsers(c.users)
}

func (c *Controller) rebuild() {
	if c.peer.IsZero() {
		return
	}
	view := conversation.BuildView(c.feed.Messages(), c.self, c.peer, c.cache)
	c.render.RenderConversation(c.peer, view)
}

func (c *Controller) fetchMessages() {
	gen, mark := c.gen, c.feed.Mark()
	ctx := c.ctx
	c.fetching++
	go func() {
		msgs, err := c.gw.Messages(ctx)
		select {
		case c.fetched <- fetchResult{gen: gen, mark: mark, msgs: msgs, err: err}:
		case <-c.done:
		}
	}()
}

func (c *Controller) fetchUsers() {
	ctx := c.ctx
	go func() {
		users, err := c.gw.Users(ctx)
		select {
		case c.usersIn <- usersResult{users: users, err: err}:
		case <-c.done:
		}
	}()
}

// showError renders err unless it is only the loop shutting down.
func (c *Controller) showError(err error) {
	if errors.Is(err, context.Canceled) || c.ctx.Err() != nil {
		return
	}
	log.Warn().Err(err).Msg("[controller] request failed")
	c.render.RenderError(i18n.ForError(c.lang, err))
}

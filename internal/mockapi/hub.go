package mockapi

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// frame is what the backend pushes: {"type": ..., "data": ...}.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type directed struct {
	to    string
	frame []byte
}

// Hub keeps the set of connected sockets and fans frames out to them.
// Only Run touches clients.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	direct     chan directed
	register   chan *wsClient
	unregister chan *wsClient
	count      chan chan int
	done       chan struct{}
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 64),
		direct:     make(chan directed, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			log.Debug().Str("user", c.username).Int("clients", len(h.clients)).Msg("[mockapi] socket joined")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				h.deliver(c, msg)
			}

		case d := <-h.direct:
			for c := range h.clients {
				if c.username == d.to {
					h.deliver(c, d.frame)
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// deliver drops a client whose buffer is full.
func (h *Hub) deliver(c *wsClient, msg []byte) {
	select {
	case c.send <- msg:
	default:
		close(c.send)
		delete(h.clients, c)
	}
}

// Broadcast sends {type, data} to every connected socket.
func (h *Hub) Broadcast(kind string, data any) {
	b, err := json.Marshal(frame{Type: kind, Data: data})
	if err != nil {
		log.Error().Err(err).Str("type", kind).Msg("[mockapi] encode frame")
		return
	}
	select {
	case h.broadcast <- b:
	case <-h.done:
	}
}

func (h *Hub) sendTo(username, kind string, data any) {
	b, err := json.Marshal(frame{Type: kind, Data: data})
	if err != nil {
		return
	}
	select {
	case h.direct <- directed{to: username, frame: b}:
	case <-h.done:
	}
}

func (h *Hub) join(c *wsClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Connected returns the number of open sockets.
func (h *Hub) Connected() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

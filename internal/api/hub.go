package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/zappabad/cloutmarket/internal/metrics"
)

// Message is the envelope of everything sent on the websocket.
type Message struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Hub fans messages out to websocket clients. All client bookkeeping runs
// on the Run goroutine; a client that cannot keep up is disconnected.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]struct{}
	// latest holds the last message of each type, sent to new clients.
	latest  map[string][]byte
	metrics *metrics.Metrics
	logger  *slog.Logger
	done    chan struct{}
}

// NewHub creates a Hub. buffer is the broadcast queue size.
func NewHub(buffer int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, buffer),
		clients:    make(map[*client]struct{}),
		latest:     make(map[string][]byte),
		metrics:    m,
		logger:     logger.With("component", "ws_hub"),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.WSClients.Set(float64(len(h.clients)))
			for _, msg := range h.latest {
				select {
				case c.send <- msg:
				default:
				}
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case msg := <-h.broadcast:
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &env); err == nil {
				h.latest[env.Type] = msg
			}
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client
					h.logger.Debug("dropping slow websocket client", "remote", c.remote)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.metrics.WSClients.Set(float64(len(h.clients)))
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(typ string, at time.Time, data any) {
	msg, err := json.Marshal(Message{Type: typ, Time: at, Data: data})
	if err != nil {
		h.logger.Error("encode websocket message", "type", typ, "err", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping", "type", typ)
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

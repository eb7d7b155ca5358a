// Package push fans server events out to every connected browser over
// websockets.
package push

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrClosed  = errors.New("push hub closed")
	ErrBacklog = errors.New("push hub backlog full")
)

var connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "imagefolderpicker_push_clients",
	Help: "Websocket clients currently connected",
})

// Message is the wire form of every pushed event.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains active clients and broadcasts messages to all of them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Close.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			connectedClients.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; it reconnects and reloads.
					h.drop(c)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	connectedClients.Set(float64(len(h.clients)))
}

// Close disconnects every client and stops Run.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues event for every connected client without blocking.
func (h *Hub) Send(event string, data any) error {
	payload, err := json.Marshal(Message{Type: event, Data: data})
	if err != nil {
		return err
	}

	select {
	case <-h.done:
		return ErrClosed
	default:
	}

	select {
	case h.broadcast <- payload:
		return nil
	default:
		return ErrBacklog
	}
}

// Upgrade rejects plain HTTP requests to the websocket route.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler serves one websocket connection per request.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{hub: h, conn: conn, send: make(chan []byte, 16)}

	select {
	case h.register <- c:
	case <-h.done:
		return
	}
	log.Printf("Push client connected: %s", conn.RemoteAddr())

	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump()
	}()
	c.readPump()
	<-written
	log.Printf("Push client disconnected: %s", conn.RemoteAddr())
}

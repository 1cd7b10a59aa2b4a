package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"gangs/internal/gang"
)

// Message is the envelope for everything pushed to clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type client struct {
	player uuid.UUID
	conn   *websocket.Conn
	send   chan Message
}

// Hub keeps the connected game clients. It fans gang events out to all of
// them and reports a player as online while at least one connection is open.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		logger:  logger,
	}
}

// Serve upgrades the request and holds the connection for player until
// either side closes it.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, player uuid.UUID) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("ws accept", "err", err)
		return
	}

	c := &client{
		player: player,
		conn:   conn,
		send:   make(chan Message, 64),
	}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, c)
	h.readPump(ctx, c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.player]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.player] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.player]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.player)
	}
}

func (h *Hub) IsOnline(player uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[player]) > 0
}

func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify broadcasts ev to every connected client. Slow clients drop the
// message rather than stall the caller.
func (h *Hub) Notify(ev gang.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode gang event", "err", err)
		return
	}
	msg := Message{Type: "gang_event", Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for c := range set {
			select {
			case c.send <- msg:
			default:
				h.logger.Warn("client send buffer full", "player", c.player)
			}
		}
	}
}

// readPump drains inbound frames; clients only listen, but reading is what
// notices a closed connection.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		_ = c.conn.CloseNow()
	}()
	for {
		var msg Message
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

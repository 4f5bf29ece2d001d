// Package stream pushes market events to WebSocket clients.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/atmx/college-market/internal/metrics"
	"github.com/atmx/college-market/internal/model"
)

// Event types.
const (
	TypeTradeExecuted  = "trade_executed"
	TypeMarketResolved = "market_resolved"
)

// Message is a JSON message sent to WebSocket clients.
type Message struct {
	ID              string             `json:"id"`
	Type            string             `json:"type"`
	MarketID        int64              `json:"market_id"`
	YesPrice        int64              `json:"yes_price"`
	NoPrice         int64              `json:"no_price"`
	Status          model.MarketStatus `json:"status"`
	Outcome         model.Outcome      `json:"outcome,omitempty"`
	Shares          int64              `json:"shares,omitempty"`
	ResolvedOutcome *model.Outcome     `json:"resolved_outcome,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// TradeExecuted describes a committed buy and the market's new prices.
func TradeExecuted(m *model.Market, outcome model.Outcome, shares int64) Message {
	return Message{
		Type:      TypeTradeExecuted,
		MarketID:  m.ID,
		YesPrice:  m.YesPrice,
		NoPrice:   m.NoPrice,
		Status:    m.Status,
		Outcome:   outcome,
		Shares:    shares,
		Timestamp: time.Now().UTC(),
	}
}

// MarketResolved describes a market that has just been resolved.
func MarketResolved(m *model.Market) Message {
	return Message{
		Type:            TypeMarketResolved,
		MarketID:        m.ID,
		YesPrice:        m.YesPrice,
		NoPrice:         m.NoPrice,
		Status:          m.Status,
		ResolvedOutcome: m.ResolvedOutcome,
		Timestamp:       time.Now().UTC(),
	}
}

// Hub manages WebSocket connections and broadcasts messages to all
// connected clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop and returns when ctx is cancelled.
// Must be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(total))
}

// Clients returns the number of registered connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every connected client. It never blocks: when
// the buffer is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws marshal failed", "type", msg.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("ws broadcast buffer full, dropping message", "type", msg.Type, "market_id", msg.MarketID)
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// NewHandler returns the upgrade handler for GET /api/v1/ws. Origins not in
// allowed are refused; an empty list allows any origin.
func (h *Hub) NewHandler(allowed []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowed),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("ws upgrade failed", "error", err)
			return
		}

		select {
		case h.register <- conn:
		case <-h.done:
			conn.Close()
			return
		}

		// Read pump: keep connection alive and detect disconnects.
		go func() {
			defer func() {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
			}()
			conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				conn.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()

		// Ping ticker to keep connection alive through proxies.
		go func() {
			ticker := time.NewTicker(pingPeriod)
			defer ticker.Stop()
			for range ticker.C {
				var pingErr error
				h.mu.Lock()
				_, ok := h.clients[conn]
				if ok {
					pingErr = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				}
				h.mu.Unlock()
				if !ok || pingErr != nil {
					return
				}
			}
		}()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || set[origin]
	}
}

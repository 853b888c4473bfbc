package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"ludoduel/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub раздаёт снапшоты матча всем подключённым отрисовщикам.
// Новый клиент сразу получает последний снапшот, дальше — каждый коммит.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	last    []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// Serve апгрейдит HTTP-запрос и привязывает клиента к хабу
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, h)

	h.mu.Lock()
	h.clients[c] = true
	if h.last != nil {
		c.send <- h.last
	}
	n := len(h.clients)
	h.mu.Unlock()

	logger.Debug("viewer connected", "viewers", n)

	go c.writePump()
	go c.readPump()
}

// Broadcast рассылает очередной снапшот всем клиентам
func (h *Hub) Broadcast(snapshot []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = snapshot
	for c := range h.clients {
		select {
		case c.send <- snapshot:
		default:
			// забитый канал: клиент мёртв или безнадёжно отстал
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// wsManager fans out small JSON events (block mined, transaction
// accepted) to every connected WebSocket client.
type wsManager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	log        log.Logger
}

func newWSManager() *wsManager {
	return &wsManager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log.New("component", "api.ws"),
	}
}

// run drives the manager's event loop for the process lifetime; it has
// no shutdown signal of its own and is expected to exit with the
// process.
func (m *wsManager) run() {
	for {
		select {
		case conn := <-m.register:
			m.clients[conn] = true
			m.log.Debug("client connected", "total", len(m.clients))
		case conn := <-m.unregister:
			if _, ok := m.clients[conn]; ok {
				delete(m.clients, conn)
				conn.Close()
			}
		case msg := <-m.broadcast:
			for conn := range m.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					delete(m.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

func (m *wsManager) push(v interface{}) {
	b, err := jsonMarshal(v)
	if err != nil {
		m.log.Error("failed to marshal ws event", "err", err)
		return
	}
	m.broadcast <- b
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (m *wsManager) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("ws upgrade failed", "err", err)
		return
	}
	m.register <- conn
}

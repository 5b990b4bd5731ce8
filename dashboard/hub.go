package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/mesisim/logging"
)

// hub fans a snapshot out to every connected WebSocket client, grounded on
// the teacher's web_websocket_hub.go wsHub (register/remove/broadcast
// channels drained by one goroutine, so client slowness never blocks the
// producer).
type hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan []byte
	log       *logging.Logger
}

func newHub(log *logging.Logger) *hub {
	if log == nil {
		log = logging.Default()
	}
	h := &hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 16),
		log:       log,
	}
	go h.run()
	return h
}

func (h *hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.clients[conn] = true
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Warnf("dropping websocket client: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

func (h *hub) handle(srv *Server, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	h.register <- conn

	if data, err := json.Marshal(snapshotCaches(srv.sys)); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	go func() {
		defer func() { h.remove <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Warnf("websocket read error: %v", err)
				}
				return
			}
		}
	}()
}

// pushSnapshot marshals the current cache state and fans it out. Called
// from the bus-transaction hook, so a connected browser tab updates live
// during `run` (SPEC_FULL.md §9).
func (h *hub) pushSnapshot(srv *Server) {
	data, err := json.Marshal(snapshotCaches(srv.sys))
	if err != nil {
		h.log.Errorf("failed to marshal snapshot for websocket: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warnf("websocket broadcast buffer full, dropping snapshot")
	}
}

package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"slidecast/internal/config"
	"slidecast/pkg/types"
)

// maxFrameBytes bounds inbound frames. The largest legal command is a
// save_note carrying MaxNoteLength of content plus its JSON envelope.
const maxFrameBytes = types.MaxNoteLength + 1024

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is a deployment concern; the join code and identity
		// token are the capabilities that gate access.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Identity resolves the authenticated user behind an HTTP request.
type Identity interface {
	FromRequest(r *http.Request) (string, error)
}

// CommandSink consumes decoded frames from connections. Implemented by the
// dispatcher; declared here so the gateway does not depend on it.
type CommandSink interface {
	HandleCommand(conn *Connection, data []byte)
	HandleDisconnect(conn *Connection)
}

// Handler upgrades HTTP requests to realtime connections and runs their
// read pumps. It authenticates the transport; joining a room is a protocol
// command handled by the sink.
type Handler struct {
	identity Identity
	sink     CommandSink
	cfg      config.WebSocketConfig
}

func NewHandler(identity Identity, sink CommandSink, cfg config.WebSocketConfig) *Handler {
	return &Handler{identity: identity, sink: sink, cfg: cfg}
}

// HandleWebSocket serves GET /ws. The caller must present a valid identity
// token; everything session-related happens after the upgrade.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity.FromRequest(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: user=%s err=%v", userID, err)
		return
	}

	conn := NewConnection(ws, userID, h.cfg.BufferSize, h.cfg.WriteTimeout)
	log.Printf("connection opened: user=%s remote=%s", userID, ws.RemoteAddr())

	go h.readPump(conn)
}

// readPump owns the socket's read side: heartbeat deadlines, frame
// decoding, and teardown on close.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.sink.HandleDisconnect(conn)
		_ = conn.Close()
		log.Printf("connection closed: user=%s", conn.UserID())
	}()

	conn.conn.SetReadLimit(maxFrameBytes)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error: user=%s err=%v", conn.UserID(), err)
			}
			return
		}
		if messageType == websocket.TextMessage {
			h.sink.HandleCommand(conn, data)
		}
	}
}

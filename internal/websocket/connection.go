package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps one WebSocket. All writes go through a single writer
// goroutine: gorilla connections do not tolerate concurrent writers, and the
// per-connection ordered channel is what preserves broadcast order.
//
// Identity (userID) is fixed at upgrade time. Attachment to a session room
// happens later, on join_session, and may be cleared and set again when the
// client rejoins after a session ends.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once

	mu            sync.RWMutex
	userID        string
	participantID string
	sessionID     string
	displayName   string
	role          string
	attached      bool
}

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, userID string, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		userID:       userID,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for delivery. Events queued by one goroutine arrive in
// queue order; a full buffer or closed connection is an error, never a block.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the writer down and closes the socket. Safe to call twice.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Attach binds the connection to a session room as a participant.
func (c *Connection) Attach(participantID, sessionID, displayName, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participantID = participantID
	c.sessionID = sessionID
	c.displayName = displayName
	c.role = role
	c.attached = true
}

// Detach clears room membership; the socket stays open so the client can
// join another session.
func (c *Connection) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participantID = ""
	c.sessionID = ""
	c.displayName = ""
	c.role = ""
	c.attached = false
}

func (c *Connection) Attached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attached
}

func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) ParticipantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// Done is closed when the connection shuts down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

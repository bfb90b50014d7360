package websocket

import (
	"sync"
)

// Rooms tracks which connections are attached to which session. A room is
// nothing more than this set; broadcast fan-out iterates it. Pure membership
// bookkeeping, no protocol logic.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]*Connection // sessionID -> participantID -> conn
}

func NewRooms() *Rooms {
	return &Rooms{members: make(map[string]map[string]*Connection)}
}

// Add registers an attached connection in its session's room. A second
// connection for the same participant replaces the first; the stale one is
// closed asynchronously so a reconnect never races its own cleanup.
func (r *Rooms) Add(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.Attached() {
		return ErrNotAttached
	}

	sessionID := conn.SessionID()
	participantID := conn.ParticipantID()

	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.members[sessionID]
	if room == nil {
		room = make(map[string]*Connection)
		r.members[sessionID] = room
	}
	if stale, ok := room[participantID]; ok && stale != conn {
		go stale.Close()
	}
	room[participantID] = conn
	return nil
}

// Remove takes a connection out of its room. Idempotent; a different
// connection registered under the same participant is left alone.
func (r *Rooms) Remove(sessionID, participantID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[sessionID]
	if !ok {
		return
	}
	if current, ok := room[participantID]; !ok || current != conn {
		return
	}
	delete(room, participantID)
	if len(room) == 0 {
		delete(r.members, sessionID)
	}
}

// Session returns the room's connections.
func (r *Rooms) Session(sessionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.members[sessionID]
	conns := make([]*Connection, 0, len(room))
	for _, c := range room {
		conns = append(conns, c)
	}
	return conns
}

// Count reports how many connections are attached to a session.
func (r *Rooms) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[sessionID])
}

// Evict empties a room and returns the removed connections so the caller
// can detach them after the final broadcast.
func (r *Rooms) Evict(sessionID string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.members[sessionID]
	delete(r.members, sessionID)

	conns := make([]*Connection, 0, len(room))
	for _, c := range room {
		conns = append(conns, c)
	}
	return conns
}

// Stats summarizes registry state for the health endpoint.
func (r *Rooms) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, room := range r.members {
		total += len(room)
	}
	return map[string]int{
		"connections": total,
		"rooms":       len(r.members),
	}
}

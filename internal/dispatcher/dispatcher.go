// Package dispatcher validates realtime commands, drives the session store,
// and fans resulting events out to the session's room. One lock per session
// serializes command handling, so every room member observes slide changes
// in exactly the order the teacher issued them; distinct sessions never
// contend with each other.
package dispatcher

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidecast/internal/session"
	ws "slidecast/internal/websocket"
	"slidecast/pkg/interfaces"
	"slidecast/pkg/types"
)

type Dispatcher struct {
	store       *session.Store
	rooms       *ws.Rooms
	persistence interfaces.Persistence
	notes       *noteBook

	mu    sync.Mutex
	locks map[string]*sync.Mutex // sessionID -> command serialization lock
}

func New(store *session.Store, rooms *ws.Rooms, persistence interfaces.Persistence) *Dispatcher {
	return &Dispatcher{
		store:       store,
		rooms:       rooms,
		persistence: persistence,
		notes:       newNoteBook(),
		locks:       make(map[string]*sync.Mutex),
	}
}

// HandleCommand decodes and executes one frame from conn. Errors are
// answered on the offending connection only; they never touch the room.
func (d *Dispatcher) HandleCommand(conn *ws.Connection, data []byte) {
	var cmd types.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		d.sendError(conn, ErrMalformedCommand)
		return
	}

	switch cmd.Type {
	case types.CmdJoinSession:
		d.handleJoin(conn, cmd)
	case types.CmdAdvanceSlide:
		d.handleAdvance(conn, cmd)
	case types.CmdSaveNote:
		d.handleSaveNote(conn, cmd)
	case types.CmdPauseSession:
		d.handleSetStatus(conn, cmd, types.StatusPaused, types.EventSessionPaused)
	case types.CmdResumeSession:
		d.handleSetStatus(conn, cmd, types.StatusActive, types.EventSessionResumed)
	case types.CmdEndSession:
		d.handleEnd(conn, cmd)
	default:
		d.sendError(conn, ErrUnknownCommand)
	}
}

// HandleDisconnect detaches a dropped connection from its room. A teacher
// dropping does not pause or end the session; the room just sees the usual
// PARTICIPANT_LEFT and the teacher may reconnect.
func (d *Dispatcher) HandleDisconnect(conn *ws.Connection) {
	if conn.Attached() {
		d.leaveRoom(conn)
	}
}

func (d *Dispatcher) handleJoin(conn *ws.Connection, cmd types.Command) {
	if !types.IsValidDisplayName(cmd.DisplayName) {
		d.sendError(conn, ErrBadDisplayName)
		return
	}

	sess, err := d.store.GetByCode(cmd.Code)
	if err != nil {
		// Connection stays open and unattached; the client may retry.
		d.sendError(conn, err)
		return
	}

	// Rejoining from an attached connection implicitly leaves the old room.
	if conn.Attached() {
		d.leaveRoom(conn)
	}

	lock := d.roomLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	// Snapshot under the room lock: a concurrent advance either lands
	// before this read or broadcasts to the joined connection, never
	// neither.
	sess, err = d.store.Get(sess.ID)
	if err != nil {
		d.sendError(conn, err)
		return
	}
	if sess.Status == types.StatusEnded {
		d.sendError(conn, session.ErrSessionEnded)
		return
	}

	role := types.RoleStudent
	if conn.UserID() == sess.TeacherID {
		role = types.RoleTeacher
		d.evictTeacher(sess.ID, conn)
	}

	participantID := uuid.New().String()
	conn.Attach(participantID, sess.ID, cmd.DisplayName, role)
	if err := d.rooms.Add(conn); err != nil {
		conn.Detach()
		d.sendError(conn, err)
		return
	}
	d.store.Touch(sess.ID)

	// Late joiners synchronize to the present index, never slide zero.
	joined := types.NewEvent(types.EventSessionJoined, sess.ID).WithSlide(sess.CurrentSlideIndex)
	joined.ParticipantID = participantID
	joined.Role = role
	if err := conn.WriteJSON(joined); err != nil {
		log.Printf("failed to confirm join: session=%s participant=%s err=%v", sess.ID, participantID, err)
	}

	announce := types.NewEvent(types.EventParticipantJoined, sess.ID)
	announce.ParticipantID = participantID
	announce.DisplayName = cmd.DisplayName
	announce.Role = role
	d.broadcastExcept(sess.ID, announce, conn)

	log.Printf("participant joined: session=%s participant=%s role=%s name=%q",
		sess.ID, participantID, role, cmd.DisplayName)
}

func (d *Dispatcher) handleAdvance(conn *ws.Connection, cmd types.Command) {
	if !d.requireAttached(conn, cmd.SessionID) {
		return
	}

	lock := d.roomLock(cmd.SessionID)
	lock.Lock()
	defer lock.Unlock()

	updated, err := d.store.SetSlide(cmd.SessionID, cmd.SlideIndex, conn.UserID())
	if err != nil {
		d.sendError(conn, err)
		return
	}

	d.broadcast(cmd.SessionID, types.NewEvent(types.EventSlideChanged, cmd.SessionID).WithSlide(updated.CurrentSlideIndex))
}

func (d *Dispatcher) handleSetStatus(conn *ws.Connection, cmd types.Command, status, eventType string) {
	if !d.requireAttached(conn, cmd.SessionID) {
		return
	}

	lock := d.roomLock(cmd.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := d.store.SetStatus(cmd.SessionID, status, conn.UserID()); err != nil {
		d.sendError(conn, err)
		return
	}

	d.broadcast(cmd.SessionID, types.NewEvent(eventType, cmd.SessionID))
}

func (d *Dispatcher) handleSaveNote(conn *ws.Connection, cmd types.Command) {
	// Notes from an unattached connection are dropped without reply.
	if !conn.Attached() || conn.SessionID() != cmd.SessionID {
		log.Printf("ignoring note from unattached connection: user=%s", conn.UserID())
		return
	}
	if len(cmd.Content) > types.MaxNoteLength {
		d.sendError(conn, ErrNoteTooLong)
		return
	}
	if cmd.SlideIndex < 0 {
		d.sendError(conn, session.ErrSlideOutOfRange)
		return
	}

	note := d.notes.Save(cmd.SessionID, conn.ParticipantID(), cmd.SlideIndex, cmd.Content)
	d.store.Touch(cmd.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.persistence.SaveNote(ctx, note); err != nil {
		log.Printf("failed to persist note: session=%s participant=%s slide=%d err=%v",
			cmd.SessionID, conn.ParticipantID(), cmd.SlideIndex, err)
	}

	// Reply to the author only; notes are never broadcast.
	ack := types.NewEvent(types.EventNoteSaved, cmd.SessionID).WithSlide(cmd.SlideIndex)
	if err := conn.WriteJSON(ack); err != nil {
		log.Printf("failed to ack note: session=%s participant=%s err=%v", cmd.SessionID, conn.ParticipantID(), err)
	}
}

func (d *Dispatcher) handleEnd(conn *ws.Connection, cmd types.Command) {
	if !d.requireAttached(conn, cmd.SessionID) {
		return
	}
	if err := d.EndSession(cmd.SessionID, conn.UserID()); err != nil {
		d.sendError(conn, err)
	}
}

// EndSession terminates a session, broadcasts SESSION_ENDED and detaches
// every room connection. Shared by the end_session command, the REST
// surface and the idle reaper.
func (d *Dispatcher) EndSession(sessionID, requesterID string) error {
	lock := d.roomLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := d.store.End(sessionID, requesterID); err != nil {
		return err
	}

	d.broadcast(sessionID, types.NewEvent(types.EventSessionEnded, sessionID))
	for _, member := range d.rooms.Evict(sessionID) {
		member.Detach()
	}
	d.notes.DropSession(sessionID)

	d.mu.Lock()
	delete(d.locks, sessionID)
	d.mu.Unlock()
	return nil
}

// Reap is the idle-reaper hook: end on behalf of the session's teacher.
func (d *Dispatcher) Reap(sessionID, teacherID string) {
	if err := d.EndSession(sessionID, teacherID); err != nil {
		log.Printf("failed to reap session: id=%s err=%v", sessionID, err)
	}
}

// Note returns a participant's note for a slide; used by tests and tooling.
func (d *Dispatcher) Note(sessionID, participantID string, slideIndex int) (*types.Note, bool) {
	return d.notes.Get(sessionID, participantID, slideIndex)
}

func (d *Dispatcher) requireAttached(conn *ws.Connection, sessionID string) bool {
	if !conn.Attached() {
		d.sendError(conn, ErrNotInSession)
		return false
	}
	if conn.SessionID() != sessionID {
		d.sendError(conn, ErrSessionMismatch)
		return false
	}
	return true
}

// leaveRoom removes conn from its room and tells the remaining members.
func (d *Dispatcher) leaveRoom(conn *ws.Connection) {
	sessionID := conn.SessionID()
	participantID := conn.ParticipantID()

	lock := d.roomLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	d.rooms.Remove(sessionID, participantID, conn)
	conn.Detach()
	d.store.Touch(sessionID)

	left := types.NewEvent(types.EventParticipantLeft, sessionID)
	left.ParticipantID = participantID
	d.broadcast(sessionID, left)

	log.Printf("participant left: session=%s participant=%s", sessionID, participantID)
}

// evictTeacher enforces the one-teacher-participant invariant when the
// teacher reconnects while a stale teacher connection lingers.
func (d *Dispatcher) evictTeacher(sessionID string, replacement *ws.Connection) {
	for _, member := range d.rooms.Session(sessionID) {
		if member.Role() == types.RoleTeacher && member != replacement {
			d.rooms.Remove(sessionID, member.ParticipantID(), member)
			member.Detach()
			go member.Close()
		}
	}
}

func (d *Dispatcher) broadcast(sessionID string, event types.Event) {
	d.broadcastExcept(sessionID, event, nil)
}

func (d *Dispatcher) broadcastExcept(sessionID string, event types.Event, skip *ws.Connection) {
	for _, member := range d.rooms.Session(sessionID) {
		if member == skip {
			continue
		}
		if err := member.WriteJSON(event); err != nil {
			// Keep delivering to the rest of the room; the dead
			// connection's read pump will tear it down.
			log.Printf("failed to deliver %s: session=%s participant=%s err=%v",
				event.Type, sessionID, member.ParticipantID(), err)
		}
	}
}

// sendError reports a command failure to the originating connection only.
func (d *Dispatcher) sendError(conn *ws.Connection, cmdErr error) {
	log.Printf("command failed: user=%s session=%s err=%v", conn.UserID(), conn.SessionID(), cmdErr)

	event := types.NewEvent(types.EventError, conn.SessionID())
	event.Message = cmdErr.Error()
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("failed to deliver error event: user=%s err=%v", conn.UserID(), err)
	}
}

func (d *Dispatcher) roomLock(sessionID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[sessionID] = lock
	}
	return lock
}

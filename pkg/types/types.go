package types

import (
	"time"
)

// Session lifecycle states. Ended is terminal.
const (
	StatusActive = "ACTIVE"
	StatusPaused = "PAUSED"
	StatusEnded  = "ENDED"
)

// Participant roles within a session.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Client-to-server command types carried on the realtime channel.
const (
	CmdJoinSession   = "join_session"
	CmdAdvanceSlide  = "advance_slide"
	CmdSaveNote      = "save_note"
	CmdPauseSession  = "pause_session"
	CmdResumeSession = "resume_session"
	CmdEndSession    = "end_session"
)

// Server-to-client event types carried on the realtime channel.
const (
	EventSessionJoined     = "SESSION_JOINED"
	EventSlideChanged      = "SLIDE_CHANGED"
	EventParticipantJoined = "PARTICIPANT_JOINED"
	EventParticipantLeft   = "PARTICIPANT_LEFT"
	EventSessionPaused     = "SESSION_PAUSED"
	EventSessionResumed    = "SESSION_RESUMED"
	EventSessionEnded      = "SESSION_ENDED"
	EventNoteSaved         = "NOTE_SAVED"
	EventError             = "error"
)

// Session is one live, teacher-driven presentation instance tied to a lesson.
// Mutated only through the session store; the store serializes writers.
type Session struct {
	ID                string     `json:"id" db:"id"`
	JoinCode          string     `json:"join_code" db:"join_code"`
	LessonID          string     `json:"lesson_id" db:"lesson_id"`
	GroupID           string     `json:"group_id,omitempty" db:"group_id"`
	TeacherID         string     `json:"teacher_id" db:"teacher_id"`
	Status            string     `json:"status" db:"status"`
	CurrentSlideIndex int        `json:"current_slide_index" db:"current_slide_index"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Participant is a connection's session-scoped identity.
type Participant struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Note is a per-participant, per-slide annotation. Last write wins; notes
// are never broadcast to the room.
type Note struct {
	SessionID     string    `json:"session_id" db:"session_id"`
	ParticipantID string    `json:"participant_id" db:"participant_id"`
	SlideIndex    int       `json:"slide_index" db:"slide_index"`
	Content       string    `json:"content" db:"content"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Lesson is the collaborator record resolved at session creation. Slide
// content is opaque to the engine; only the count bounds navigation.
type Lesson struct {
	ID         string `json:"id" db:"id"`
	Title      string `json:"title" db:"title"`
	OrgID      string `json:"org_id" db:"org_id"`
	SlideCount int    `json:"slide_count" db:"slide_count"`
}

// Command is the envelope for every client-to-server message on the
// realtime channel. Fields not used by a command type stay zero.
type Command struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	SlideIndex  int    `json:"slide_index"`
	Content     string `json:"content,omitempty"`
}

// Event is the envelope for every server-to-client message. SlideIndex is a
// pointer so slide 0 survives serialization on the events that carry it.
type Event struct {
	Type          string    `json:"type"`
	SessionID     string    `json:"session_id,omitempty"`
	ParticipantID string    `json:"participant_id,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	Role          string    `json:"role,omitempty"`
	SlideIndex    *int      `json:"slide_index,omitempty"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType, sessionID string) Event {
	return Event{Type: eventType, SessionID: sessionID, Timestamp: time.Now()}
}

// WithSlide attaches a slide index to an event.
func (e Event) WithSlide(index int) Event {
	e.SlideIndex = &index
	return e
}

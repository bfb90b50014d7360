package interfaces

import (
	"context"

	"slidecast/pkg/types"
)

// SessionStore is the authoritative session record and state machine. All
// mutations of a session are serialized by the implementation; snapshots
// returned from reads are copies and safe to retain.
type SessionStore interface {
	Create(ctx context.Context, teacherID, lessonID, groupID string) (*types.Session, error)
	Get(sessionID string) (*types.Session, error)
	GetByCode(code string) (*types.Session, error)
	SetSlide(sessionID string, index int, requesterID string) (*types.Session, error)
	SetStatus(sessionID, status, requesterID string) (*types.Session, error)
	End(sessionID, requesterID string) (*types.Session, error)
	Touch(sessionID string)
}

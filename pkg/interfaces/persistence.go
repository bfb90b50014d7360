package interfaces

import (
	"context"

	"slidecast/pkg/types"
)

// Persistence is the durable-storage collaborator. The engine treats it as
// external: session truth lives in the store's memory, and persistence is a
// write-behind record plus the source for crash recovery.
type Persistence interface {
	SaveSession(ctx context.Context, session *types.Session) error
	UpdateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	ListLiveSessions(ctx context.Context) ([]*types.Session, error)
	SaveNote(ctx context.Context, note *types.Note) error
	HealthCheck(ctx context.Context) error
	Close() error
}

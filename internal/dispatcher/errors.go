package dispatcher

import (
	"fmt"

	"slidecast/pkg/types"
)

var (
	ErrMalformedCommand = fmt.Errorf("malformed command payload: %w", types.ErrValidation)
	ErrUnknownCommand   = fmt.Errorf("unknown command type: %w", types.ErrValidation)
	ErrNotInSession     = fmt.Errorf("join a session before sending commands: %w", types.ErrInvalidState)
	ErrSessionMismatch  = fmt.Errorf("command targets a session this connection is not attached to: %w", types.ErrForbidden)
	ErrBadDisplayName   = fmt.Errorf("display name must be 1-50 printable characters: %w", types.ErrValidation)
	ErrNoteTooLong      = fmt.Errorf("note content too long: %w", types.ErrValidation)
)

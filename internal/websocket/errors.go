package websocket

import (
	"fmt"

	"slidecast/pkg/types"
)

var (
	ErrConnectionClosed = fmt.Errorf("connection closed: %w", types.ErrTransport)
	ErrWriteTimeout     = fmt.Errorf("write timed out: %w", types.ErrTransport)
	ErrInvalidJSON      = fmt.Errorf("payload is not valid JSON: %w", types.ErrValidation)
	ErrNotAttached      = fmt.Errorf("connection not attached to a session: %w", types.ErrInvalidState)
	ErrNilConnection    = fmt.Errorf("connection cannot be nil: %w", types.ErrValidation)
)

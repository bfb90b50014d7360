package client

import (
	"fmt"

	"slidecast/pkg/types"
)

var (
	ErrNotConnected     = fmt.Errorf("not connected: %w", types.ErrInvalidState)
	ErrAlreadyConnected = fmt.Errorf("already connected: %w", types.ErrInvalidState)
	ErrNotJoined        = fmt.Errorf("no joined session: %w", types.ErrInvalidState)
	ErrNotPresenting    = fmt.Errorf("only the presenting teacher can do this: %w", types.ErrForbidden)
	ErrSlideOutOfRange  = fmt.Errorf("slide index out of range: %w", types.ErrValidation)
	ErrJoinRejected     = fmt.Errorf("join rejected: %w", types.ErrForbidden)
)

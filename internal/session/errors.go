package session

import (
	"fmt"

	"slidecast/pkg/types"
)

// Store errors wrap the shared classes so callers can classify with
// errors.Is(err, types.ErrNotFound) etc. while logs keep specific messages.
var (
	ErrSessionNotFound = fmt.Errorf("session not found: %w", types.ErrNotFound)
	ErrLessonNotFound  = fmt.Errorf("lesson not found: %w", types.ErrNotFound)
	ErrInvalidJoinCode = fmt.Errorf("join code must be 6 characters from the restricted alphabet: %w", types.ErrValidation)
	ErrNotTeacher      = fmt.Errorf("only the session teacher may do this: %w", types.ErrForbidden)
	ErrNotAuthorized   = fmt.Errorf("user may not present lessons for this organization: %w", types.ErrForbidden)
	ErrSessionEnded    = fmt.Errorf("session has already ended: %w", types.ErrInvalidState)
	ErrBadTransition   = fmt.Errorf("status transition not allowed: %w", types.ErrInvalidState)
	ErrSlideOutOfRange = fmt.Errorf("slide index out of range: %w", types.ErrValidation)
	ErrInvalidUserID   = fmt.Errorf("invalid user id: %w", types.ErrValidation)
)

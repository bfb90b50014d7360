package types

import "errors"

// Error classes shared across components. Component packages wrap these with
// fmt.Errorf("...: %w", class) so callers classify with errors.Is while
// still seeing a specific message.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrTransport    = errors.New("transport failure")
)

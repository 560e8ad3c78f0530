package submission

import "errors"

var (
	ErrLocked       = errors.New("submission is locked")
	ErrNotHydrated  = errors.New("submission is still loading")
	ErrSaveInFlight = errors.New("a draft save is already in progress")
	ErrSessionDead  = errors.New("session expired")
	ErrBadMonth     = errors.New("month must be in YYYY-MM format")
)

// ValidationError is a local, user-actionable failure. It never reaches the
// network.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErr(msg string) error { return &ValidationError{Message: msg} }

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

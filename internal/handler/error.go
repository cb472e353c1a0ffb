package handler

import (
	"errors"

	"github.com/glizzus/voice-rooms/internal/presenters"
	"github.com/glizzus/voice-rooms/internal/rooms"
)

// UserError is an error type that is used to represent
// an error that should be displayed to the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

var _ error = (*UserError)(nil)

// ResponseText is what the invoking user is told when handling their
// interaction failed with err.
func ResponseText(err error) string {
	var userErr *UserError
	switch {
	case errors.As(err, &userErr):
		return userErr.Message
	case errors.Is(err, rooms.ErrNotAllowed):
		return presenters.NotAllowedText
	case errors.Is(err, rooms.ErrNotTracked):
		return presenters.NotTrackedText
	case errors.Is(err, rooms.ErrInvalidLimit):
		return presenters.InvalidLimitText
	case errors.Is(err, rooms.ErrInvalidName):
		return presenters.InvalidNameText
	default:
		return presenters.ErrorText(err)
	}
}

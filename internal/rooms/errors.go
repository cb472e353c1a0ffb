package rooms

import "errors"

var (
	ErrNotTracked       = errors.New("channel is not a tracked room")
	ErrNotEmpty         = errors.New("room is not empty")
	ErrUnknownOccupancy = errors.New("room occupancy is not known yet")
	ErrCategoryNotFound = errors.New("room category not found")
	ErrInvalidLimit     = errors.New("user limit must be between 0 and 99")
	ErrInvalidName      = errors.New("room name must be between 1 and 100 characters")
	ErrNotAllowed       = errors.New("only the room creator or an administrator may do that")
)

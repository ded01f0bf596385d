package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room is absent or has expired.
	ErrRoomNotFound = errors.New("room not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrUnauthorized is returned for host-only actions from a non-host
	// connection, or a mismatched host identity on reconnect.
	ErrUnauthorized = errors.New("unauthorized")
)

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a player has no game session yet.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrInvalidTransition is returned when an operation is not valid in the current phase.
	ErrInvalidTransition = errors.New("operation not allowed in current phase")
	// ErrInvalidChoice indicates a submitted answer index is out of range.
	ErrInvalidChoice = errors.New("answer choice out of range")
	// ErrProviderUnavailable indicates the trivia provider failed or returned no questions.
	ErrProviderUnavailable = errors.New("trivia provider unavailable")
	// ErrRoomNotFound is returned when a room id has no room record.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when creating a room under an id that is taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrPoolNotReady is returned when a room member starts before the host published questions.
	ErrPoolNotReady = errors.New("waiting for the host to start the game")
	// ErrIdentityUnavailable indicates no anonymous player identity could be established.
	ErrIdentityUnavailable = errors.New("player identity unavailable")
)

// ValidationError describes a rejected settings field. The session stays in setup.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

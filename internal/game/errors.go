package game

import "errors"

var (
	// ErrInvalidInput marks a malformed join/reconnect payload. Reported to
	// the requester only, never broadcast.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotFound marks a reconnect naming an unknown prior session.
	ErrSessionNotFound = errors.New("no session to reconnect")

	// ErrRoomNotFound is returned by stores when no record exists for a
	// room id.
	ErrRoomNotFound = errors.New("room not found")
)

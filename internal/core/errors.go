package core

import "errors"

// Failure classes. Handlers answer the requester only (or drop the
// request); failures are never broadcast to a room.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrValidation      = errors.New("invalid request")
	ErrCapacity        = errors.New("capacity exceeded")
	ErrNotFound        = errors.New("not found")
)

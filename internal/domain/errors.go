package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrEndOfStream     = errors.New("end of tick stream")
	ErrLockHeld        = errors.New("lock already held")
	ErrUnfilled        = errors.New("order not filled")
	ErrStateVersion    = errors.New("unsupported state version")
	ErrPositionNotOpen = errors.New("position is not in the open set")
	ErrTickSequence    = errors.New("tick number out of sequence")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrWSDisconnect    = errors.New("websocket disconnected")
)

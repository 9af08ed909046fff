package domain

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotInRoom        = errors.New("session is not in room")
	ErrEmptyContent     = errors.New("message content is empty")
	ErrContentTooLong   = errors.New("message content is too long")
	ErrSessionLimit     = errors.New("session limit reached")
	ErrSessionClosed    = errors.New("session closed")
	ErrSendQueueFull    = errors.New("send queue full")
	ErrIdentityMismatch = errors.New("identity does not match authenticated user")
)

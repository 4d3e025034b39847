package domain

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrRoomNotFound    = errors.New("chat room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrConflict        = errors.New("already exists")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSelfTarget      = errors.New("cannot open a chat with yourself")

	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	ErrInvalidInput   = errors.New("invalid input")
)

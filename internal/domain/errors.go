package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrCapacityExhausted = errors.New("all rooms are full")
	ErrAuthRejected      = errors.New("session rejected")
	ErrInvalidInput      = errors.New("invalid input")
)

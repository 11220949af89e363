package domain

import "errors"

var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrRetriesExhausted  = errors.New("reconnect attempts exhausted")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrClientClosed      = errors.New("client closed")
	ErrQueueClosed       = errors.New("playback queue closed")
)

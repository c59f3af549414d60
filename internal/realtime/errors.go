package realtime

import "errors"

var (
	ErrClientQueueFull = errors.New("client message queue is full")
	ErrInvalidMessage  = errors.New("invalid message format")
	ErrInvalidTopic    = errors.New("unknown topic")
	ErrNotSubscribed   = errors.New("not subscribed to topic")
)

package queue

import "errors"

// ErrClosed is returned when enqueueing after Close.
var ErrClosed = errors.New("queue closed")

// Package worker runs goroutines that drain a record queue into a handler.
package worker

import (
	"github.com/okian/tourney-ingest/pkg/logger"
)

// Option tunes one InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName names the worker in its log lines. Empty keeps "worker".
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger logs through l, named after the worker. Nil keeps the default.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

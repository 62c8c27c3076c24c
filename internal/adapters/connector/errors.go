package connector

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for connectors.
var (
	// ErrFetch covers network, timeout, HTTP status and file failures for one source.
	ErrFetch = errors.New("source fetch failed")
	// ErrParse marks one record, or a whole document, that could not be read.
	ErrParse = errors.New("parse failed")
	// ErrDependencyUnavailable means a connector was built without a decoder it needs.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrUnknownType is returned by the factory for a type it has no connector for.
	ErrUnknownType = errors.New("unknown source type")
	// ErrDocumentTooLarge means a fetched body exceeded the configured cap.
	ErrDocumentTooLarge = errors.New("document too large")
)

func parseError(record int, err error) error {
	return fmt.Errorf("%w: record %d: %w", ErrParse, record, err)
}

func documentError(err error) error {
	return fmt.Errorf("%w: document: %w", ErrParse, err)
}

package geocode

import "errors"

// Sentinel errors. Neither result is cached, so the address is tried again
// on the next run.
var (
	ErrNotFound    = errors.New("address not found")
	ErrUnavailable = errors.New("geocoder unavailable")
)

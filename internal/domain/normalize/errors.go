package normalize

import (
	"errors"
	"fmt"
)

// ErrRejected marks a raw record that cannot become a canonical event.
var ErrRejected = errors.New("record rejected")

// Rejection reasons.
const (
	ReasonMissingTitle = "missing_title"
	ReasonMissingStart = "missing_start"
	ReasonInvalidStart = "invalid_start"
)

// Rejection carries the reason a record was dropped.
type Rejection struct {
	Reason string
	Value  string
}

func (r *Rejection) Error() string {
	if r.Value == "" {
		return fmt.Sprintf("%s: %s", ErrRejected, r.Reason)
	}
	return fmt.Sprintf("%s: %s %q", ErrRejected, r.Reason, r.Value)
}

func (r *Rejection) Unwrap() error { return ErrRejected }

// ReasonOf returns the rejection reason carried by err, or "".
func ReasonOf(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return ""
}

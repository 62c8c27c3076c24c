package model

import (
	"strings"
	"time"
)

// Canonical variant names.
const (
	VariantHoldem = "Holdem"
	VariantOmaha  = "Omaha"
	VariantMixed  = "Mixed"
)

// UnknownVenue names a venue no source described.
const UnknownVenue = "Unknown Venue"

// Status is the lifecycle state of a tournament.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus maps free text onto a Status, defaulting to scheduled.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cancelled", "canceled", "annulé", "annule", "cancel":
		return StatusCancelled
	case "completed", "complete", "finished", "done", "terminé", "termine":
		return StatusCompleted
	default:
		return StatusScheduled
	}
}

// CanonicalEvent is a validated tournament ready to be stored.
type CanonicalEvent struct {
	Title       string
	Description string
	Start       time.Time // UTC
	End         *time.Time
	BuyInCents  *int64
	Currency    string
	Variant     string
	Status      Status

	VenueName string
	Address   string
	City      string

	SourceURL  string
	SourceHash string
}

// VenueKey returns the natural key of the event's venue.
func (e CanonicalEvent) VenueKey() VenueKey {
	return VenueKey{Name: e.VenueName, City: e.City}
}

// HasLocationHint reports whether an address or city is known.
func (e CanonicalEvent) HasLocationHint() bool {
	return e.Address != "" || e.City != ""
}

// EventKey is the natural key of a stored tournament.
type EventKey struct {
	VenueID int64
	Title   string
	Start   time.Time
}

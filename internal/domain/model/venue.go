package model

import "strings"

// Venue is a physical place hosting tournaments.
type Venue struct {
	ID         int64
	Name       string
	City       string
	Address    string
	Department string
	Region     string
	Latitude   *float64
	Longitude  *float64
}

// Key returns the venue's natural key.
func (v Venue) Key() VenueKey {
	return VenueKey{Name: v.Name, City: v.City}
}

// ApplyLocation copies resolved coordinates and administrative areas onto v.
func (v *Venue) ApplyLocation(loc *Location) {
	if loc == nil {
		return
	}
	lat, lon := loc.Latitude, loc.Longitude
	v.Latitude, v.Longitude = &lat, &lon
	if loc.Department != "" {
		v.Department = loc.Department
	}
	if loc.Region != "" {
		v.Region = loc.Region
	}
}

// Merge fills fields of v from update, never replacing a known value with an
// unknown one.
func (v Venue) Merge(update Venue) Venue {
	if update.Address != "" {
		v.Address = update.Address
	}
	if update.Department != "" {
		v.Department = update.Department
	}
	if update.Region != "" {
		v.Region = update.Region
	}
	if update.Latitude != nil {
		v.Latitude = update.Latitude
	}
	if update.Longitude != nil {
		v.Longitude = update.Longitude
	}
	return v
}

// VenueKey identifies a venue by name and city. City may be empty.
type VenueKey struct {
	Name string
	City string
}

// String returns a case-folded form usable as a lock or map key.
func (k VenueKey) String() string {
	return strings.ToLower(k.Name) + "\x00" + strings.ToLower(k.City)
}

// Location is the result of resolving an address.
type Location struct {
	Latitude   float64
	Longitude  float64
	Department string
	Region     string
}

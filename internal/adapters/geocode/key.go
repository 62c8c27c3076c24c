package geocode

import (
	"strings"
)

// NormalizeKey folds an address into its cache key: lower case, single
// spaces, ", " between parts and no empty parts.
func NormalizeKey(address string) string {
	parts := strings.Split(strings.ToLower(address), ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// LookupString joins venue parts into a geocoder query, skipping blanks.
func LookupString(parts ...string) string {
	keep := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, ", ")
}

package model

// UnknownLocation is the placeholder the extractor uses when it cannot name a place.
const UnknownLocation = "Unknown"

// Location is the structured attribute set derived from a tip's text.
type Location struct {
	City       string  `json:"city"`
	Country    string  `json:"country"`
	Confidence float64 `json:"confidence"`
}

// IsKnown reports whether v names a real place rather than the extractor placeholder.
func IsKnown(v string) bool {
	return v != "" && v != UnknownLocation
}

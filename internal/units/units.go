// Package units provides shared constants and conversion for distance units.
// Distances are stored and computed in meters.
package units

import "strings"

// Unit constants
const (
	Meters     = "m"
	Feet       = "ft"
	Kilometers = "km"
	Miles      = "mi"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Meters, Feet, Kilometers, Miles}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertDistance converts meters to the target units. Unknown units are
// treated as meters.
func ConvertDistance(meters float64, targetUnits string) float64 {
	switch targetUnits {
	case Feet:
		return meters * 3.28084
	case Kilometers:
		return meters / 1000
	case Miles:
		return meters / 1609.344
	default:
		return meters
	}
}

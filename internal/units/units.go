// Package units provides shared constants and conversions for angular units
package units

import "math"

// Unit constants
const (
	Radian = "rad"
	Degree = "deg"
	Arcmin = "arcmin"
	Arcsec = "arcsec"
)

// Conversion factors from radians.
const (
	DegreesPerRadian = 180.0 / math.Pi
	ArcsecPerRadian  = DegreesPerRadian * 3600.0
	ArcminPerRadian  = DegreesPerRadian * 60.0
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Radian, Degree, Arcmin, Arcsec}

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
	return "rad, deg, arcmin, arcsec"
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg / DegreesPerRadian
}

// ConvertAngle converts an angle in radians to the target units.
// Unknown units return radians unchanged.
func ConvertAngle(rad float64, targetUnits string) float64 {
	switch targetUnits {
	case Degree:
		return rad * DegreesPerRadian
	case Arcmin:
		return rad * ArcminPerRadian
	case Arcsec:
		return rad * ArcsecPerRadian
	default:
		return rad
	}
}

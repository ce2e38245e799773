// Package sky holds equatorial sky positions and the angular separation
// between them.
package sky

import (
	"fmt"
	"math"

	"github.com/banshee-data/truthmatch/internal/units"
)

// Coord is a position on the celestial sphere. The trigonometric terms are
// computed once so repeated separations against the same coordinate are cheap.
type Coord struct {
	RA, Dec float64 // degrees

	ra             float64 // radians
	sinDec, cosDec float64
}

// NewCoord builds a coordinate from right ascension and declination in degrees.
func NewCoord(raDeg, decDeg float64) Coord {
	dec := units.DegToRad(decDeg)
	return Coord{
		RA:     raDeg,
		Dec:    decDeg,
		ra:     units.DegToRad(raDeg),
		sinDec: math.Sin(dec),
		cosDec: math.Cos(dec),
	}
}

// Coords zips ra and dec slices (degrees) into coordinates. Every value must
// be finite.
func Coords(ra, dec []float64) ([]Coord, error) {
	if len(ra) != len(dec) {
		return nil, fmt.Errorf("ra has %d values, dec has %d", len(ra), len(dec))
	}
	out := make([]Coord, len(ra))
	for i := range ra {
		if !finite(ra[i]) || !finite(dec[i]) {
			return nil, fmt.Errorf("row %d: non-finite position (%v, %v)", i, ra[i], dec[i])
		}
		out[i] = NewCoord(ra[i], dec[i])
	}
	return out, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Separation returns the great-circle angle between a and b in radians using
// the Vincenty formula, which is accurate at every separation including
// antipodal and coincident points.
func Separation(a, b Coord) float64 {
	dra := b.ra - a.ra
	sdra, cdra := math.Sincos(dra)

	num1 := b.cosDec * sdra
	num2 := a.cosDec*b.sinDec - a.sinDec*b.cosDec*cdra
	den := a.sinDec*b.sinDec + a.cosDec*b.cosDec*cdra

	return math.Atan2(math.Hypot(num1, num2), den)
}

// SeparationArcsec returns Separation in arcseconds.
func SeparationArcsec(a, b Coord) float64 {
	return Separation(a, b) * units.ArcsecPerRadian
}

// UnitVector returns the Cartesian direction of c on the unit sphere, with x
// towards (0, 0) and z towards the north celestial pole.
func UnitVector(c Coord) (x, y, z float64) {
	sinRA, cosRA := math.Sincos(c.ra)
	x = c.cosDec * cosRA
	y = c.cosDec * sinRA
	z = c.sinDec
	return
}

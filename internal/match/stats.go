package match

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises a match. Separations are in arcsec over unique claims.
type Stats struct {
	TruthRows  int
	Objects    int
	Claims     int
	Unique     int
	Duplicates int
	Unmatched  int

	MeanSep   float64
	MedianSep float64
	P90Sep    float64
	MaxSep    float64
}

// Summarize computes Stats from the claims of a match over truthRows truth
// entries and objects objects.
func Summarize(truthRows, objects int, claims []Claim) Stats {
	s := Stats{TruthRows: truthRows, Objects: objects, Claims: len(claims)}

	seps := make([]float64, 0, len(claims))
	for _, c := range claims {
		if c.Unique {
			s.Unique++
			seps = append(seps, c.Separation)
		} else {
			s.Duplicates++
		}
	}
	s.Unmatched = truthRows - s.Unique
	if len(seps) == 0 {
		return s
	}

	sort.Float64s(seps)
	s.MeanSep = stat.Mean(seps, nil)
	s.MedianSep = stat.Quantile(0.5, stat.Empirical, seps, nil)
	s.P90Sep = stat.Quantile(0.9, stat.Empirical, seps, nil)
	s.MaxSep = floats.Max(seps)
	return s
}

// UniqueSeparations returns the separations of the unique claims in object
// order.
func UniqueSeparations(claims []Claim) []float64 {
	var out []float64
	for _, c := range claims {
		if c.Unique {
			out = append(out, c.Separation)
		}
	}
	return out
}

package sky

import (
	"math"
	"testing"
)

func TestSeparation(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Coord
		wantDeg float64
		tol     float64
	}{
		{"coincident", NewCoord(10, 20), NewCoord(10, 20), 0, 0},
		{"along equator", NewCoord(0, 0), NewCoord(90, 0), 90, 1e-12},
		{"pole to equator", NewCoord(0, 90), NewCoord(123, 0), 90, 1e-12},
		{"antipodal", NewCoord(0, 0), NewCoord(180, 0), 180, 1e-12},
		{"ra wraps", NewCoord(359.5, 0), NewCoord(0.5, 0), 1, 1e-12},
		{"pole ra is irrelevant", NewCoord(0, 90), NewCoord(200, 90), 0, 1e-12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Separation(tt.a, tt.b) * 180 / math.Pi
			if math.Abs(got-tt.wantDeg) > tt.tol {
				t.Errorf("Separation = %v deg, want %v", got, tt.wantDeg)
			}
			back := Separation(tt.b, tt.a) * 180 / math.Pi
			if math.Abs(back-got) > 1e-12 {
				t.Errorf("Separation not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestSeparationArcsec_Small(t *testing.T) {
	// 0.1 arcsec offset in declination.
	a := NewCoord(55, -30)
	b := NewCoord(55, -30+0.1/3600)

	got := SeparationArcsec(a, b)
	if math.Abs(got-0.1) > 1e-9 {
		t.Errorf("SeparationArcsec = %v, want 0.1", got)
	}
}

func TestUnitVector(t *testing.T) {
	tests := []struct {
		c       Coord
		x, y, z float64
	}{
		{NewCoord(0, 0), 1, 0, 0},
		{NewCoord(90, 0), 0, 1, 0},
		{NewCoord(0, 90), 0, 0, 1},
		{NewCoord(180, -90), 0, 0, -1},
	}
	for _, tt := range tests {
		x, y, z := UnitVector(tt.c)
		if math.Abs(x-tt.x) > 1e-12 || math.Abs(y-tt.y) > 1e-12 || math.Abs(z-tt.z) > 1e-12 {
			t.Errorf("UnitVector(%v,%v) = (%v,%v,%v), want (%v,%v,%v)", tt.c.RA, tt.c.Dec, x, y, z, tt.x, tt.y, tt.z)
		}
		if n := math.Sqrt(x*x + y*y + z*z); math.Abs(n-1) > 1e-12 {
			t.Errorf("norm = %v, want 1", n)
		}
	}
}

func TestCoords(t *testing.T) {
	cs, err := Coords([]float64{1, 2}, []float64{3, 4})
	if err != nil {
		t.Fatalf("Coords failed: %v", err)
	}
	if len(cs) != 2 || cs[1].RA != 2 || cs[1].Dec != 4 {
		t.Errorf("unexpected coords %+v", cs)
	}

	if _, err := Coords([]float64{1}, []float64{}); err == nil {
		t.Error("expected length mismatch error")
	}
	if _, err := Coords([]float64{math.NaN()}, []float64{0}); err == nil {
		t.Error("expected non-finite error")
	}
}

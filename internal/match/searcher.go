// Package match cross-matches an object catalog against a truth catalog by
// nearest sky position and resolves collisions where several objects claim
// the same truth entry.
package match

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/banshee-data/truthmatch/internal/sky"
)

// Searcher builds a nearest-neighbour index over a catalog of positions.
type Searcher interface {
	Name() string
	Build(catalog []sky.Coord) Index
}

// Index answers nearest-neighbour queries against the catalog it was built
// from. Nearest returns the catalog position with the smallest angular
// separation from q and that separation in radians; ties go to the lowest
// position. It returns -1 when the catalog is empty.
type Index interface {
	Nearest(q sky.Coord) (int, float64)
}

// SearcherNames lists the names accepted by SearcherByName.
var SearcherNames = []string{"kdtree", "brute"}

// SearcherByName returns the searcher registered under name.
func SearcherByName(name string) (Searcher, error) {
	switch name {
	case "", "kdtree":
		return KDTreeSearcher{}, nil
	case "brute":
		return BruteSearcher{}, nil
	}
	return nil, fmt.Errorf("unknown searcher %q (valid: %v)", name, SearcherNames)
}

// BruteSearcher compares every query against every catalog entry. It is the
// reference definition of a nearest match.
type BruteSearcher struct{}

// Name implements Searcher.
func (BruteSearcher) Name() string { return "brute" }

// Build implements Searcher.
func (BruteSearcher) Build(catalog []sky.Coord) Index { return bruteIndex(catalog) }

type bruteIndex []sky.Coord

func (b bruteIndex) Nearest(q sky.Coord) (int, float64) {
	best, bestSep := -1, math.Inf(1)
	for i, c := range b {
		// Strict < keeps the first of equal separations.
		if s := sky.Separation(q, c); s < bestSep {
			best, bestSep = i, s
		}
	}
	return best, bestSep
}

// KDTreeSearcher indexes catalog positions as unit vectors in a k-d tree.
// Chord length is monotonic in angular separation, so the tree's nearest
// chord gives a search radius; every candidate inside it is then ranked by
// exact separation. Results are identical to BruteSearcher.
type KDTreeSearcher struct{}

// Name implements Searcher.
func (KDTreeSearcher) Name() string { return "kdtree" }

// Build implements Searcher.
func (KDTreeSearcher) Build(catalog []sky.Coord) Index {
	if len(catalog) == 0 {
		return bruteIndex(nil)
	}
	pts := make(unitPoints, len(catalog))
	for i, c := range catalog {
		pts[i] = newUnitPoint(c, i)
	}
	return &kdIndex{tree: kdtree.New(pts, false), catalog: catalog}
}

type kdIndex struct {
	tree    *kdtree.Tree
	catalog []sky.Coord
}

// chordSlack widens the candidate radius so rounding in the chord distance
// never excludes the true nearest position.
const chordSlack = 1e-10

func (k *kdIndex) Nearest(q sky.Coord) (int, float64) {
	qp := newUnitPoint(q, -1)
	got, d := k.tree.Nearest(qp)
	if got == nil {
		return -1, math.Inf(1)
	}

	r := math.Sqrt(d) + chordSlack
	keep := kdtree.NewDistKeeper(r * r)
	k.tree.NearestSet(keep, qp)

	best, bestSep := -1, math.Inf(1)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		row := cd.Comparable.(unitPoint).row
		s := sky.Separation(q, k.catalog[row])
		if s < bestSep || (s == bestSep && row < best) {
			best, bestSep = row, s
		}
	}
	return best, bestSep
}

// unitPoint is a catalog position on the unit sphere tagged with its row.
type unitPoint struct {
	v   [3]float64
	row int
}

func newUnitPoint(c sky.Coord, row int) unitPoint {
	x, y, z := sky.UnitVector(c)
	return unitPoint{v: [3]float64{x, y, z}, row: row}
}

// Compare implements kdtree.Comparable.
func (p unitPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.v[d] - c.(unitPoint).v[d]
}

// Dims implements kdtree.Comparable.
func (p unitPoint) Dims() int { return 3 }

// Distance returns the squared chord length, the metric the tree prunes on.
func (p unitPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(unitPoint)
	dx := p.v[0] - q.v[0]
	dy := p.v[1] - q.v[1]
	dz := p.v[2] - q.v[2]
	return dx*dx + dy*dy + dz*dz
}

type unitPoints []unitPoint

func (p unitPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p unitPoints) Len() int                      { return len(p) }
func (p unitPoints) Pivot(d kdtree.Dim) int        { return unitPlane{unitPoints: p, dim: d}.Pivot() }
func (p unitPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// unitPlane sorts points along one dimension for median partitioning.
type unitPlane struct {
	unitPoints
	dim kdtree.Dim
}

func (p unitPlane) Less(i, j int) bool {
	return p.unitPoints[i].v[p.dim] < p.unitPoints[j].v[p.dim]
}
func (p unitPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p unitPlane) Slice(start, end int) kdtree.SortSlicer {
	p.unitPoints = p.unitPoints[start:end]
	return p
}
func (p unitPlane) Swap(i, j int) {
	p.unitPoints[i], p.unitPoints[j] = p.unitPoints[j], p.unitPoints[i]
}

var (
	_ kdtree.Interface  = unitPoints(nil)
	_ kdtree.SortSlicer = unitPlane{}
	_ sort.Interface    = unitPlane{}
)

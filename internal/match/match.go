package match

import (
	"context"
	"fmt"
	"sort"

	"github.com/banshee-data/truthmatch/internal/catalog"
	"github.com/banshee-data/truthmatch/internal/monitoring"
	"github.com/banshee-data/truthmatch/internal/sky"
	"github.com/banshee-data/truthmatch/internal/units"
)

// Columns added to the truth table by Match.
const (
	ColMatchSep      = "match_sep"
	ColMatchObjectID = "match_objectId"
	ColUnique        = "is_unique_truth_entry"
)

// Input column names.
const (
	ColRA       = "ra"
	ColDec      = "dec"
	ColTract    = "tract"
	ColObjectID = "objectId"
)

// Unmatched is the separation and object id of a truth row no object claimed.
const Unmatched = -1

// DefaultBatchSize is the number of objects searched between context checks.
const DefaultBatchSize = 4096

// Options configures Match.
type Options struct {
	// Validate enables the closure and uniqueness checks.
	Validate bool

	// Searcher defaults to KDTreeSearcher.
	Searcher Searcher

	Logger monitoring.Logger

	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
}

// Claim is one object's nomination of its nearest truth row.
type Claim struct {
	ObjectID   int64
	ObjectRow  int
	TruthRow   int
	Separation float64 // arcsec
	Unique     bool    // closest claim on TruthRow
}

// Result is the outcome of a match.
type Result struct {
	// Table is the truth table, in truth order, with the match columns
	// describing each row's winning claim or the unmatched sentinel.
	Table *catalog.Table

	// Claims holds every nomination in object order, including the losing
	// claims on contested truth rows.
	Claims []Claim

	Stats Stats
}

// Match finds, for every object, the truth row nearest on the sky, then keeps
// the closest claim on each truth row as its unique match. Truth rows no
// object claimed get match_sep -1, match_objectId -1 and are unique.
//
// The truth table needs ra and dec; the object table needs objectId, ra and
// dec. A differing tract in the first rows is logged and otherwise ignored.
// With Validate set, a result that violates closure or uniqueness coverage is
// reported as catalog.ErrValidation and no result is returned.
func Match(ctx context.Context, truth, objects *catalog.Table, opts Options) (*Result, error) {
	log := monitoring.OrDefault(opts.Logger)
	searcher := opts.Searcher
	if searcher == nil {
		searcher = KDTreeSearcher{}
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	checkTract(truth, objects, log)

	truthCoords, err := coords(truth)
	if err != nil {
		return nil, fmt.Errorf("truth catalog: %w", err)
	}
	objectIDs, err := objects.Int64s(ColObjectID)
	if err != nil {
		return nil, fmt.Errorf("object catalog: %w", err)
	}
	for _, name := range []string{ColRA, ColDec} {
		if _, err := objects.Require(name); err != nil {
			return nil, fmt.Errorf("object catalog: %w", err)
		}
	}

	var (
		claims []Claim
		rads   []float64
	)
	if truth.Len() > 0 {
		index := searcher.Build(truthCoords)
		claims = make([]Claim, 0, objects.Len())
		rads = make([]float64, 0, objects.Len())
		for start, part := range catalog.Batches(objects, batch) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			qs, err := coords(part)
			if err != nil {
				return nil, fmt.Errorf("object catalog: rows from %d: %w", start, err)
			}
			for j, q := range qs {
				row, sep := index.Nearest(q)
				claims = append(claims, Claim{
					ObjectID:   objectIDs[start+j],
					ObjectRow:  start + j,
					TruthRow:   row,
					Separation: sep * units.ArcsecPerRadian,
				})
				rads = append(rads, sep)
			}
		}
	}

	markUnique(claims, rads)
	table, err := annotate(truth, claims)
	if err != nil {
		return nil, err
	}

	if opts.Validate {
		if err := validate(table, objectIDs); err != nil {
			return nil, err
		}
	}

	res := &Result{Table: table, Claims: claims}
	res.Stats = Summarize(truth.Len(), objects.Len(), claims)
	log.Infof("matched %d objects against %d truth rows with %s: %d unique, %d duplicate claims, %d unmatched truth rows",
		objects.Len(), truth.Len(), searcher.Name(), res.Stats.Unique, res.Stats.Duplicates, res.Stats.Unmatched)
	return res, nil
}

// markUnique flags the closest claim on each truth row. Claims are ranked by
// separation with ties kept in object order.
func markUnique(claims []Claim, rads []float64) {
	order := make([]int, len(claims))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rads[order[a]] < rads[order[b]] })

	claimed := make(map[int]bool, len(claims))
	for _, i := range order {
		row := claims[i].TruthRow
		if !claimed[row] {
			claimed[row] = true
			claims[i].Unique = true
		}
	}
}

// annotate adds the match columns to truth from the winning claims.
func annotate(truth *catalog.Table, claims []Claim) (*catalog.Table, error) {
	n := truth.Len()
	seps := make([]float64, n)
	ids := make([]int64, n)
	unique := make([]bool, n)
	for i := range seps {
		seps[i] = Unmatched
		ids[i] = Unmatched
		unique[i] = true
	}
	for _, c := range claims {
		if c.Unique {
			seps[c.TruthRow] = c.Separation
			ids[c.TruthRow] = c.ObjectID
		}
	}
	return truth.WithColumns(
		catalog.NewFloat64Column(ColMatchSep, seps),
		catalog.NewInt64Column(ColMatchObjectID, ids),
		catalog.NewBoolColumn(ColUnique, unique),
	)
}

func coords(t *catalog.Table) ([]sky.Coord, error) {
	ra, err := t.Float64s(ColRA)
	if err != nil {
		return nil, err
	}
	dec, err := t.Float64s(ColDec)
	if err != nil {
		return nil, err
	}
	return sky.Coords(ra, dec)
}

func checkTract(truth, objects *catalog.Table, log monitoring.Logger) {
	tc, ok1 := truth.Column(ColTract)
	oc, ok2 := objects.Column(ColTract)
	if !ok1 || !ok2 || truth.Len() == 0 || objects.Len() == 0 {
		return
	}
	a, errA := tc.Float64At(0)
	b, errB := oc.Float64At(0)
	if errA != nil || errB != nil {
		if tc.Format(0) != oc.Format(0) {
			log.Warnf("truth tract %s does not match object tract %s", tc.Format(0), oc.Format(0))
		}
		return
	}
	if a != b {
		log.Warnf("truth tract %s does not match object tract %s", tc.Format(0), oc.Format(0))
	}
}

// Package pipeline runs merge, match and write for each region and fans
// regions out over a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/truthmatch/internal/catalog"
	"github.com/banshee-data/truthmatch/internal/fsutil"
	"github.com/banshee-data/truthmatch/internal/match"
	"github.com/banshee-data/truthmatch/internal/monitoring"
	"github.com/banshee-data/truthmatch/internal/registry"
	"github.com/banshee-data/truthmatch/internal/report"
	"github.com/banshee-data/truthmatch/internal/security"
	"github.com/banshee-data/truthmatch/internal/timeutil"
	"github.com/banshee-data/truthmatch/internal/truth"
	"github.com/banshee-data/truthmatch/internal/units"
)

// Options configures a run. The zero value merges with the default truth
// types and writes CSV to the current directory.
type Options struct {
	Name         string // output base name, default "truth"
	OutputDir    string // default "."
	OutputFormat string // csv, csv.gz or sqlite; default csv

	TruthTypes   []string
	Validate     bool
	MatchingOnly bool

	Searcher      match.Searcher
	BatchSize     int
	ObjectColumns catalog.QuantityMap

	WriteClaims  bool
	PlotDir      string
	SummaryUnits string // unit of logged separations, default arcsec

	// NCores bounds concurrently running regions, default 1.
	NCores int

	Logger monitoring.Logger
	FS     fsutil.FileSystem
	Clock  timeutil.Clock
}

func (o *Options) defaults() {
	if o.Name == "" {
		o.Name = "truth"
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	if o.OutputFormat == "" {
		o.OutputFormat = "csv"
	}
	if o.Searcher == nil {
		o.Searcher = match.KDTreeSearcher{}
	}
	if o.SummaryUnits == "" {
		o.SummaryUnits = units.Arcsec
	}
	if o.NCores < 1 {
		o.NCores = 1
	}
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	o.Logger = monitoring.OrDefault(o.Logger)
	o.Clock = timeutil.OrReal(o.Clock)
}

// RegionResult is the outcome of one region.
type RegionResult struct {
	Region Region

	// Tract is the tract the output was named after.
	Tract      string
	OutputPath string
	ClaimsPath string
	PlotPaths  []string

	Rows    int
	Matched bool
	Stats   match.Stats

	Duration time.Duration
	Err      error
}

// Failed counts results with an error.
func Failed(results []RegionResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// RunRegions processes every region on at most opts.NCores workers. A failed
// region records its error in its result and does not stop the others.
// Results are in region order.
func RunRegions(ctx context.Context, regions []Region, opts Options) []RegionResult {
	opts.defaults()
	results := make([]RegionResult, len(regions))

	g := new(errgroup.Group)
	g.SetLimit(opts.NCores)
	for i, region := range regions {
		g.Go(func() error {
			results[i] = RunRegion(ctx, region, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RunRegion merges (or loads) the truth table for one region, matches it when
// an object catalog is given, and writes the result as
// <output_dir>/<name>_tract<tract>.<format>.
func RunRegion(ctx context.Context, region Region, opts Options) RegionResult {
	opts.defaults()
	start := opts.Clock.Now()
	res := RegionResult{Region: region}

	log := opts.Logger
	if region.Tract != "" {
		log = monitoring.WithPrefix(log, fmt.Sprintf("[tract %s] ", region.Tract))
	}

	res.Err = runRegion(ctx, region, opts, log, &res)
	res.Duration = opts.Clock.Since(start)
	if res.Err != nil {
		log.Errorf("failed after %s: %v", res.Duration, res.Err)
	} else {
		log.Infof("done with writing to %s in %s", res.OutputPath, res.Duration)
	}
	return res
}

func runRegion(ctx context.Context, region Region, opts Options, log monitoring.Logger, res *RegionResult) error {
	if err := checkFormat(opts.OutputFormat); err != nil {
		return err
	}
	if _, err := security.FileComponent(opts.Name); err != nil {
		return fmt.Errorf("output name: %w", err)
	}

	tbl, err := loadTruth(ctx, region, opts, log)
	if err != nil {
		return err
	}
	res.Rows = tbl.Len()

	var claims []match.Claim
	if region.ObjectPath != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		objects, err := loadObjects(opts.FS, region.ObjectPath, opts.ObjectColumns, log)
		if err != nil {
			return err
		}

		log.Infof("performing nearest neighbor match")
		mres, err := match.Match(ctx, tbl, objects, match.Options{
			Validate:  opts.Validate,
			Searcher:  opts.Searcher,
			Logger:    log,
			BatchSize: opts.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("match %s: %w", region.ObjectPath, err)
		}
		tbl, claims = mres.Table, mres.Claims
		res.Matched = true
		res.Stats = mres.Stats
		logSummary(log, mres.Stats, opts.SummaryUnits)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	res.Tract, err = outputTract(tbl, region, log)
	if err != nil {
		return err
	}

	res.OutputPath = OutputPath(opts.OutputDir, opts.Name, res.Tract, opts.OutputFormat)
	if res.Matched {
		if err := writeSideOutputs(opts, tbl, claims, res); err != nil {
			discardSideOutputs(opts.FS, res, log)
			return err
		}
	}

	log.Infof("writing output to disk at %s", res.OutputPath)
	if err := catalog.WriteFile(opts.FS, res.OutputPath, tbl); err != nil {
		discardSideOutputs(opts.FS, res, log)
		return err
	}
	return nil
}

// writeSideOutputs writes the claims table and the report. They are written
// before the main table so a region whose outputs fail never leaves its main
// table on disk.
func writeSideOutputs(opts Options, tbl *catalog.Table, claims []match.Claim, res *RegionResult) error {
	if opts.WriteClaims {
		ct, err := claimsTable(tbl, claims)
		if err != nil {
			return err
		}
		path := ClaimsPath(opts.OutputDir, opts.Name, res.Tract, opts.OutputFormat)
		if err := catalog.WriteFile(opts.FS, path, ct); err != nil {
			return err
		}
		res.ClaimsPath = path
	}

	if opts.PlotDir != "" {
		rep, err := reportRegion(opts.Name, res.Tract, tbl, claims, res.Stats)
		if err != nil {
			return err
		}
		res.PlotPaths, err = report.Write(opts.FS, opts.PlotDir, rep)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

// discardSideOutputs removes the claims table and report files of a failed
// region.
func discardSideOutputs(fsys fsutil.FileSystem, res *RegionResult, log monitoring.Logger) {
	paths := res.PlotPaths
	if res.ClaimsPath != "" {
		paths = append([]string{res.ClaimsPath}, paths...)
	}
	for _, p := range paths {
		if err := fsys.Remove(p); err != nil && fsys.Exists(p) {
			log.Warnf("cannot remove %s: %v", p, err)
		}
	}
	res.ClaimsPath = ""
	res.PlotPaths = nil
}

func loadTruth(ctx context.Context, region Region, opts Options, log monitoring.Logger) (*catalog.Table, error) {
	if opts.MatchingOnly {
		log.Infof("loading truth catalog from %s", region.InputPath)
		return catalog.ReadFileText(opts.FS, region.InputPath, []string{truth.ColID})
	}
	return truth.Merge(ctx, region.InputPath, truth.Options{
		Types:    opts.TruthTypes,
		Validate: opts.Validate,
		Logger:   log,
		FS:       opts.FS,
	})
}

// objectQuantities are the object columns the matcher reads; tract is optional.
var objectQuantities = []string{match.ColObjectID, match.ColRA, match.ColDec}

func loadObjects(fsys fsutil.FileSystem, path string, qmap catalog.QuantityMap, log monitoring.Logger) (*catalog.Table, error) {
	log.Infof("loading object catalog from %s", path)

	withTract := append(append([]string(nil), objectQuantities...), match.ColTract)
	raw, err := catalog.ReadFile(fsys, path, qmap.Natives(withTract...)...)
	quantities := withTract
	if errors.Is(err, catalog.ErrMissingColumn) {
		raw, err = catalog.ReadFile(fsys, path, qmap.Natives(objectQuantities...)...)
		quantities = objectQuantities
	}
	if err != nil {
		return nil, err
	}
	return qmap.Select(raw, quantities...)
}

// outputTract names the output after the first row's tract, falling back to
// the region's tract when the table has none. A tract value that is not a
// safe file name is sanitized with a warning.
func outputTract(tbl *catalog.Table, region Region, log monitoring.Logger) (string, error) {
	tract := region.Tract
	if c, ok := tbl.Column(truth.ColTract); ok && tbl.Len() > 0 && !c.IsNull(0) {
		tract = c.Format(0)
	}
	if tract == "" {
		return "", fmt.Errorf("cannot name output: no tract column in %s", region.InputPath)
	}
	if _, err := security.FileComponent(tract); err != nil {
		safe := security.SanitizeFilename(tract)
		log.Warnf("tract %q is not a safe file name (%v); writing as %q", tract, err, safe)
		tract = safe
	}
	return tract, nil
}

func logSummary(log monitoring.Logger, s match.Stats, unit string) {
	conv := func(arcsec float64) float64 {
		return units.ConvertAngle(arcsec/units.ArcsecPerRadian, unit)
	}
	log.Infof("separation %s: mean %.4g, median %.4g, p90 %.4g, max %.4g",
		unit, conv(s.MeanSep), conv(s.MedianSep), conv(s.P90Sep), conv(s.MaxSep))
}

// claimsTable lists every object's claim with the claimed truth row's id.
func claimsTable(tbl *catalog.Table, claims []match.Claim) (*catalog.Table, error) {
	n := len(claims)
	objIDs := make([]int64, n)
	rows := make([]int64, n)
	seps := make([]float64, n)
	unique := make([]bool, n)
	for i, c := range claims {
		objIDs[i] = c.ObjectID
		rows[i] = int64(c.TruthRow)
		seps[i] = c.Separation
		unique[i] = c.Unique
	}
	cols := []*catalog.Column{
		catalog.NewInt64Column(match.ColObjectID, objIDs),
		catalog.NewInt64Column("truth_row", rows),
	}
	if idCol, ok := tbl.Column(truth.ColID); ok {
		ids := make([]string, n)
		for i, c := range claims {
			ids[i] = idCol.Format(c.TruthRow)
		}
		cols = append(cols, catalog.NewStringColumn("truth_id", ids))
	}
	cols = append(cols,
		catalog.NewFloat64Column(match.ColMatchSep, seps),
		catalog.NewBoolColumn(match.ColUnique, unique),
	)
	return catalog.NewTable(cols...)
}

func reportRegion(name, tract string, tbl *catalog.Table, claims []match.Claim, stats match.Stats) (*report.Region, error) {
	ra, err := tbl.Float64s(match.ColRA)
	if err != nil {
		return nil, err
	}
	dec, err := tbl.Float64s(match.ColDec)
	if err != nil {
		return nil, err
	}
	ids, err := tbl.Int64s(match.ColMatchObjectID)
	if err != nil {
		return nil, err
	}

	rep := &report.Region{
		Name:        name,
		Tract:       tract,
		Stats:       stats,
		Separations: match.UniqueSeparations(claims),
	}
	for i := range ra {
		p := [2]float64{ra[i], dec[i]}
		if ids[i] == match.Unmatched {
			rep.Unmatched = append(rep.Unmatched, p)
		} else {
			rep.Matched = append(rep.Matched, p)
		}
	}
	return rep, nil
}

// RegistryRegion converts a result for recording in the run registry.
func RegistryRegion(r RegionResult) registry.Region {
	out := registry.Region{
		Tract:      r.Tract,
		InputPath:  r.Region.InputPath,
		ObjectPath: r.Region.ObjectPath,
		OutputPath: r.OutputPath,
		TruthRows:  r.Rows,
		Duration:   r.Duration,
	}
	if out.Tract == "" {
		out.Tract = r.Region.Tract
	}
	if r.Matched {
		out.Objects = r.Stats.Objects
		out.Unique = r.Stats.Unique
		out.Duplicates = r.Stats.Duplicates
		out.Unmatched = r.Stats.Unmatched
		out.MeanSep = r.Stats.MeanSep
		out.MedianSep = r.Stats.MedianSep
		out.P90Sep = r.Stats.P90Sep
		out.MaxSep = r.Stats.MaxSep
	}
	if r.Err != nil {
		out.Err = r.Err.Error()
	}
	return out
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/truthmatch/internal/catalog"
	"github.com/banshee-data/truthmatch/internal/fsutil"
	"github.com/banshee-data/truthmatch/internal/match"
	"github.com/banshee-data/truthmatch/internal/monitoring"
	"github.com/banshee-data/truthmatch/internal/testutil"
	"github.com/banshee-data/truthmatch/internal/timeutil"
)

// objectsCSV claims the galaxy at (55.0, -30.0) twice and the supernova once.
var objectsCSV = testutil.CSV("objectId,ra,dec,tract,flux",
	"1,55.0,-30.0,3828,10.0",
	"2,55.0,-30.0003,3828,11.0",
	"3,55.3,-30.3,3828,12.0")

func newFixture(t *testing.T, tracts ...string) *fsutil.MemoryFileSystem {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	for _, tract := range tracts {
		testutil.WriteFiles(t, mfs, "/truth/"+tract, testutil.TractFiles(tract))
		testutil.WriteFiles(t, mfs, "/obj", map[string]string{
			"object_" + tract + ".csv": strings.ReplaceAll(objectsCSV, "3828", tract),
		})
	}
	return mfs
}

func TestRunRegion_MergeAndMatch(t *testing.T) {
	mfs := newFixture(t, "3828")
	rec := monitoring.NewRecorder()
	clock := timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	clock.AutoStep(2 * time.Second)

	res := RunRegion(context.Background(), Region{
		Tract:      "3828",
		InputPath:  "/truth/3828",
		ObjectPath: "/obj/object_3828.csv",
	}, Options{
		OutputDir: "/out",
		Validate:  true,
		Logger:    rec,
		FS:        mfs,
		Clock:     clock,
	})
	require.NoError(t, res.Err)

	assert.Equal(t, "3828", res.Tract)
	assert.Equal(t, "/out/truth_tract3828.csv", res.OutputPath)
	assert.Equal(t, 4, res.Rows)
	assert.True(t, res.Matched)
	assert.Equal(t, 2*time.Second, res.Duration)
	assert.Equal(t, 3, res.Stats.Objects)
	assert.Equal(t, 2, res.Stats.Unique)
	assert.Equal(t, 1, res.Stats.Duplicates)
	assert.Equal(t, 2, res.Stats.Unmatched)
	assert.Empty(t, rec.Warnings())

	out, err := catalog.ReadFile(mfs, res.OutputPath)
	require.NoError(t, err)
	require.Equal(t, 4, out.Len())

	// Lexicographic file order: sn, star, truth_gal.
	ids, err := out.Strings("id")
	require.NoError(t, err)
	assert.Equal(t, []string{"MS_1", "9001", "11", "12"}, ids)

	objIDs, err := out.Int64s(match.ColMatchObjectID)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, match.Unmatched, 1, match.Unmatched}, objIDs)

	seps, err := out.Float64s(match.ColMatchSep)
	require.NoError(t, err)
	assert.Equal(t, -1.0, seps[1])
	assert.Equal(t, -1.0, seps[3])
	assert.InDelta(t, 0, seps[2], 1e-9)

	uniq, ok := out.Column(match.ColUnique)
	require.True(t, ok)
	assert.Equal(t, []bool{true, true, true, true}, uniq.Bools)

	// Object columns other than id, position and tract are not loaded.
	assert.False(t, out.Has("flux"))
}

func TestRunRegion_WritesClaimsAndReport(t *testing.T) {
	mfs := newFixture(t, "3828")

	res := RunRegion(context.Background(), Region{
		InputPath:  "/truth/3828",
		ObjectPath: "/obj/object_3828.csv",
	}, Options{
		Name:        "dc2",
		OutputDir:   "/out",
		WriteClaims: true,
		PlotDir:     "/plots",
		Logger:      monitoring.Nop(),
		FS:          mfs,
	})
	require.NoError(t, res.Err)
	assert.Equal(t, "/out/dc2_tract3828_claims.csv", res.ClaimsPath)
	assert.Equal(t, []string{"/plots/dc2_tract3828_sep.png", "/plots/dc2_tract3828_report.html"}, res.PlotPaths)

	claims, err := catalog.ReadFile(mfs, res.ClaimsPath)
	require.NoError(t, err)
	assert.Equal(t, []string{match.ColObjectID, "truth_row", "truth_id", match.ColMatchSep, match.ColUnique}, claims.Names())

	objIDs, err := claims.Int64s(match.ColObjectID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, objIDs)

	rows, err := claims.Int64s("truth_row")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2, 0}, rows)

	truthIDs, err := claims.Strings("truth_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"11", "11", "MS_1"}, truthIDs)

	seps, err := claims.Float64s(match.ColMatchSep)
	require.NoError(t, err)
	assert.InDelta(t, 1.08, seps[1], 0.01, "the losing claim keeps its own separation")

	uniq, ok := claims.Column(match.ColUnique)
	require.True(t, ok)
	assert.Equal(t, []bool{true, false, true}, uniq.Bools)

	html, err := mfs.ReadFile("/plots/dc2_tract3828_report.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "dc2")

	png, err := mfs.ReadFile("/plots/dc2_tract3828_sep.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))
}

func TestRunRegion_MergeOnly(t *testing.T) {
	mfs := newFixture(t, "3828")

	res := RunRegion(context.Background(), Region{InputPath: "/truth/3828"}, Options{
		OutputDir:    "/out",
		OutputFormat: "csv.gz",
		WriteClaims:  true,
		Logger:       monitoring.Nop(),
		FS:           mfs,
	})
	require.NoError(t, res.Err)
	assert.False(t, res.Matched)
	assert.Empty(t, res.ClaimsPath)
	assert.Equal(t, "/out/truth_tract3828.csv.gz", res.OutputPath)

	out, err := catalog.ReadFile(mfs, res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())
	assert.False(t, out.Has(match.ColMatchSep))
}

func TestRunRegion_MatchingOnly(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	testutil.WriteFiles(t, mfs, "/in", map[string]string{
		"merged.csv": testutil.CSV("id,ra,dec", "a,10.0,10.0", "b,20.0,20.0"),
		// Native column names differ from the matcher's quantities and
		// there is no tract column.
		"objects.csv": testutil.CSV("obj,coord_ra,coord_dec", "5,20.0,20.0"),
	})

	opts := Options{
		OutputDir:     "/out",
		MatchingOnly:  true,
		Searcher:      match.BruteSearcher{},
		ObjectColumns: catalog.QuantityMap{"objectId": "obj", "ra": "coord_ra", "dec": "coord_dec"},
		Logger:        monitoring.Nop(),
		FS:            mfs,
	}

	res := RunRegion(context.Background(), Region{Tract: "7", InputPath: "/in/merged.csv", ObjectPath: "/in/objects.csv"}, opts)
	require.NoError(t, res.Err)
	assert.Equal(t, "7", res.Tract, "falls back to the region tract")
	assert.Equal(t, 1, res.Stats.Unique)

	out, err := catalog.ReadFile(mfs, res.OutputPath)
	require.NoError(t, err)
	objIDs, err := out.Int64s(match.ColMatchObjectID)
	require.NoError(t, err)
	assert.Equal(t, []int64{match.Unmatched, 5}, objIDs)

	res = RunRegion(context.Background(), Region{InputPath: "/in/merged.csv", ObjectPath: "/in/objects.csv"}, opts)
	assert.Error(t, res.Err, "no tract to name the output after")
}

func TestRunRegion_Errors(t *testing.T) {
	mfs := newFixture(t, "3828")
	testutil.WriteFiles(t, mfs, "/obj", map[string]string{"noid.csv": testutil.CSV("ra,dec", "1,1")})

	tests := []struct {
		name    string
		region  Region
		opts    Options
		wantErr error
	}{
		{"missing truth dir", Region{InputPath: "/nope"}, Options{}, nil},
		{"bad format", Region{InputPath: "/truth/3828"}, Options{OutputFormat: "parquet"}, catalog.ErrUnsupportedFormat},
		{"missing object column", Region{InputPath: "/truth/3828", ObjectPath: "/obj/noid.csv"}, Options{}, catalog.ErrMissingColumn},
		{"missing objects", Region{InputPath: "/truth/3828", ObjectPath: "/obj/none.csv"}, Options{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.FS = mfs
			tt.opts.OutputDir = "/out"
			rec := monitoring.NewRecorder()
			tt.opts.Logger = rec

			res := RunRegion(context.Background(), tt.region, tt.opts)
			require.Error(t, res.Err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(res.Err, tt.wantErr), "got %v", res.Err)
			}
			assert.NotEmpty(t, rec.Messages(monitoring.LevelError))
		})
	}
}

func TestRunRegion_Cancelled(t *testing.T) {
	mfs := newFixture(t, "3828")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := RunRegion(ctx, Region{InputPath: "/truth/3828", ObjectPath: "/obj/object_3828.csv"}, Options{
		OutputDir: "/out",
		Logger:    monitoring.Nop(),
		FS:        mfs,
	})
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, mfs.Exists("/out/truth_tract3828.csv"))
}

func TestRunRegions(t *testing.T) {
	mfs := newFixture(t, "3828", "3829", "3830")

	regions, err := ExpandRegions("/truth/{}", "/obj/object_{}.csv", []int{3830, 3828, 9999, 3829})
	require.NoError(t, err)

	results := RunRegions(context.Background(), regions, Options{
		OutputDir: "/out",
		NCores:    3,
		Logger:    monitoring.Nop(),
		FS:        mfs,
	})
	require.Len(t, results, 4)
	assert.Equal(t, 1, Failed(results))

	for i, tract := range []string{"3828", "3829", "3830"} {
		r := results[i]
		require.NoError(t, r.Err, tract)
		assert.Equal(t, tract, r.Tract)
		assert.Equal(t, 2, r.Stats.Unique)
		assert.True(t, mfs.Exists(OutputPath("/out", "truth", tract, "csv")))
	}
	assert.Error(t, results[3].Err)
	assert.Equal(t, "9999", results[3].Region.Tract)
}

func TestRunRegion_SQLiteOutput(t *testing.T) {
	dir := t.TempDir()
	fsys := fsutil.OSFileSystem{}
	testutil.WriteFiles(t, fsys, filepath.Join(dir, "truth"), testutil.TractFiles("3828"))
	testutil.WriteFiles(t, fsys, dir, map[string]string{"objects.csv": objectsCSV})

	res := RunRegion(context.Background(), Region{
		InputPath:  filepath.Join(dir, "truth"),
		ObjectPath: filepath.Join(dir, "objects.csv"),
	}, Options{
		OutputDir:    filepath.Join(dir, "out"),
		OutputFormat: "sqlite",
		Logger:       monitoring.Nop(),
		FS:           fsys,
	})
	require.NoError(t, res.Err)

	_, err := os.Stat(res.OutputPath)
	require.NoError(t, err)

	out, err := catalog.ReadFile(fsys, res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())
	objIDs, err := out.Int64s(match.ColMatchObjectID)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, match.Unmatched, 1, match.Unmatched}, objIDs)
}

func TestRegistryRegion(t *testing.T) {
	r := RegionResult{
		Region:     Region{Tract: "3828", InputPath: "/truth/3828", ObjectPath: "/obj.csv"},
		OutputPath: "/out/truth_tract3828.csv",
		Rows:       4,
		Matched:    true,
		Stats:      match.Stats{Objects: 3, Unique: 2, Duplicates: 1, Unmatched: 2, MeanSep: 0.5, MaxSep: 1},
		Duration:   time.Second,
	}
	got := RegistryRegion(r)
	assert.Equal(t, "3828", got.Tract)
	assert.Equal(t, 4, got.TruthRows)
	assert.Equal(t, 3, got.Objects)
	assert.Equal(t, 0.5, got.MeanSep)
	assert.Empty(t, got.Err)

	r.Err = errors.New("boom")
	r.Matched = false
	got = RegistryRegion(r)
	assert.Equal(t, "boom", got.Err)
	assert.Zero(t, got.Objects)
}

func TestRunRegion_UnsafeTract(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	testutil.WriteFiles(t, mfs, "/in", map[string]string{
		"merged.csv": testutil.CSV("id,ra,dec,tract", "a,10.0,10.0,../../etc"),
	})
	rec := monitoring.NewRecorder()

	res := RunRegion(context.Background(), Region{InputPath: "/in/merged.csv"}, Options{
		OutputDir:    "/out",
		MatchingOnly: true,
		Logger:       rec,
		FS:           mfs,
	})
	require.NoError(t, res.Err)
	assert.Equal(t, "etc", res.Tract)
	assert.Equal(t, "/out/truth_tractetc.csv", res.OutputPath)
	assert.Len(t, rec.Warnings(), 1)

	res = RunRegion(context.Background(), Region{InputPath: "/in/merged.csv"}, Options{
		Name:         "../x",
		OutputDir:    "/out",
		MatchingOnly: true,
		Logger:       monitoring.Nop(),
		FS:           mfs,
	})
	assert.Error(t, res.Err)
}

// failCreateFS fails Create for one path and delegates everything else.
type failCreateFS struct {
	*fsutil.MemoryFileSystem
	path string
}

func (f *failCreateFS) Create(name string) (io.WriteCloser, error) {
	if filepath.Clean(name) == f.path {
		return nil, fmt.Errorf("create %s: %w", name, fs.ErrPermission)
	}
	return f.MemoryFileSystem.Create(name)
}

func TestRunRegion_FailedOutputsLeaveNothingBehind(t *testing.T) {
	tests := []struct {
		name     string
		failPath string
	}{
		{"report fails", "/plots/truth_tract3828_report.html"},
		{"main table fails", "/out/.tmp-truth_tract3828.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := &failCreateFS{MemoryFileSystem: newFixture(t, "3828"), path: tt.failPath}

			res := RunRegion(context.Background(), Region{
				InputPath:  "/truth/3828",
				ObjectPath: "/obj/object_3828.csv",
			}, Options{
				OutputDir:   "/out",
				WriteClaims: true,
				PlotDir:     "/plots",
				Logger:      monitoring.Nop(),
				FS:          fsys,
			})
			require.ErrorIs(t, res.Err, fs.ErrPermission)
			assert.Empty(t, res.ClaimsPath)
			assert.Empty(t, res.PlotPaths)

			for _, p := range []string{
				"/out/truth_tract3828.csv",
				"/out/truth_tract3828_claims.csv",
				"/plots/truth_tract3828_sep.png",
				"/plots/truth_tract3828_report.html",
			} {
				assert.False(t, fsys.Exists(p), p)
			}
		})
	}
}

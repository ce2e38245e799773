package catalog

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/truthmatch/internal/fsutil"
)

func TestSQLite_RoundTrip(t *testing.T) {
	t.Parallel()
	fsys := fsutil.OSFileSystem{}
	path := filepath.Join(t.TempDir(), "out", "truth_tract3828.sqlite")

	dec := NewFloat64Column("dec", []float64{-30.1, math.NaN()})
	dec.Null = []bool{false, true}
	tbl := MustNewTable(
		NewStringColumn("id", []string{"101", "sn9"}),
		NewFloat64Column("ra", []float64{55.5, 56}),
		dec,
		NewInt64Column("match_objectId", []int64{9, -1}),
		NewBoolColumn("is_unique_truth_entry", []bool{true, false}),
	)

	require.NoError(t, WriteFile(fsys, path, tbl))
	assert.False(t, fsys.Exists(filepath.Join(filepath.Dir(path), ".tmp-truth_tract3828.sqlite")))

	back, err := ReadFile(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Names(), back.Names())

	ids, _ := back.Strings("id")
	assert.Equal(t, []string{"101", "sn9"}, ids)

	objs, err := back.Int64s("match_objectId")
	require.NoError(t, err)
	assert.Equal(t, []int64{9, -1}, objs)

	uniq, _ := back.Column("is_unique_truth_entry")
	assert.Equal(t, Bool, uniq.Kind)
	assert.Equal(t, []bool{true, false}, uniq.Bools)

	backDec, _ := back.Column("dec")
	assert.True(t, backDec.IsNull(1))
	assert.InDelta(t, -30.1, backDec.Floats[0], 1e-12)

	sel, err := ReadFile(fsys, path, "ra")
	require.NoError(t, err)
	assert.Equal(t, []string{"ra"}, sel.Names())
}

func TestSQLite_OnlyTable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "objects.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE object (objectId BIGINT, ra DOUBLE, dec DOUBLE);
		INSERT INTO object VALUES (1, 10.0, -5.0), (2, 10.5, -5.5);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	tbl, err := ReadFile(fsutil.OSFileSystem{}, path, "objectId", "ra", "dec")
	require.NoError(t, err)
	ids, err := tbl.Int64s("objectId")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestSQLite_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadFile(fsutil.NewMemoryFileSystem(), "/x.sqlite")
	assert.Error(t, err, "memory filesystem")

	_, err = ReadFile(fsutil.OSFileSystem{}, filepath.Join(t.TempDir(), "missing.sqlite"))
	assert.Error(t, err, "missing file")

	path := filepath.Join(t.TempDir(), "two.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE a (x INTEGER); CREATE TABLE b (y INTEGER);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = ReadFile(fsutil.OSFileSystem{}, path)
	assert.Error(t, err, "ambiguous tables")
}

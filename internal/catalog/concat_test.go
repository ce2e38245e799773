package catalog

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcat_UnionOfColumns(t *testing.T) {
	t.Parallel()

	a := MustNewTable(
		NewInt64Column("id", []int64{1, 2}),
		NewFloat64Column("ra", []float64{10, 11}),
	)
	b := MustNewTable(
		NewFloat64Column("ra", []float64{12}),
		NewStringColumn("id", []string{"x9"}),
		NewInt64Column("flux", []int64{5}),
	)

	out, err := Concat(a, b)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Len())
	assert.Equal(t, []string{"id", "ra", "flux"}, out.Names())

	id, _ := out.Column("id")
	assert.Equal(t, String, id.Kind)
	assert.Equal(t, []string{"1", "2", "x9"}, id.Strings)

	flux, _ := out.Column("flux")
	assert.Equal(t, Int64, flux.Kind)
	assert.Equal(t, []bool{true, true, false}, flux.Null)

	ras, _ := out.Float64s("ra")
	assert.Equal(t, []float64{10, 11, 12}, ras)
}

func TestConcat_PromotesIntToFloat(t *testing.T) {
	t.Parallel()

	a := MustNewTable(NewInt64Column("mag", []int64{20}))
	b := MustNewTable(NewFloat64Column("mag", []float64{21.5}))
	c := MustNewTable(NewStringColumn("other", []string{"z"}))

	out, err := Concat(a, b, c)
	require.NoError(t, err)

	got, err := out.Float64s("mag")
	require.NoError(t, err)
	want := []float64{20, 21.5, math.NaN()}
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("mag mismatch (-want +got):\n%s", diff)
	}
}

func TestConcat_Empty(t *testing.T) {
	t.Parallel()

	out, err := Concat()
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, 0, out.NumColumns())

	empty := MustNewTable(NewInt64Column("id", []int64{}))
	out, err = Concat(empty, MustNewTable(NewInt64Column("id", []int64{4})))
	require.NoError(t, err)
	ids, _ := out.Int64s("id")
	assert.Equal(t, []int64{4}, ids)
}

func TestConcat_BoolAndIntConflict(t *testing.T) {
	t.Parallel()

	a := MustNewTable(NewBoolColumn("flag", []bool{true}))
	b := MustNewTable(NewInt64Column("flag", []int64{0}))

	out, err := Concat(a, b)
	require.NoError(t, err)
	flag, _ := out.Column("flag")
	assert.Equal(t, Int64, flag.Kind)
	assert.Equal(t, []int64{1, 0}, flag.Ints)
}

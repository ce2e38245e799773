package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantityMap_Select(t *testing.T) {
	t.Parallel()
	tbl := MustNewTable(
		NewInt64Column("id", []int64{1, 2, 3}),
		NewFloat64Column("coord_ra", []float64{1, 2, 3}),
		NewFloat64Column("dec", []float64{4, 5, 6}),
	)
	m := QuantityMap{"objectId": "id", "ra": "coord_ra"}

	assert.Equal(t, []string{"id", "coord_ra", "dec"}, m.Natives("objectId", "ra", "dec"))

	sel, err := m.Select(tbl, "objectId", "ra", "dec")
	require.NoError(t, err)
	assert.Equal(t, []string{"objectId", "ra", "dec"}, sel.Names())
	assert.Equal(t, []string{"id", "coord_ra", "dec"}, tbl.Names(), "source names unchanged")

	_, err = m.Select(tbl, "tract")
	assert.ErrorIs(t, err, ErrMissingColumn)

	assert.Equal(t, "{objectId=id, ra=coord_ra}", m.String())
}

func TestIterate_Batches(t *testing.T) {
	t.Parallel()
	tbl := MustNewTable(NewInt64Column("id", []int64{1, 2, 3, 4, 5}))

	seq, err := Iterate(tbl, nil, 2, "id")
	require.NoError(t, err)

	var starts []int
	var sizes []int
	for start, batch := range seq {
		starts = append(starts, start)
		sizes = append(sizes, batch.Len())
	}
	assert.Equal(t, []int{0, 2, 4}, starts)
	assert.Equal(t, []int{2, 2, 1}, sizes)

	count := 0
	for range Batches(tbl, 0) {
		count++
	}
	assert.Equal(t, 1, count)

	for range Batches(MustNewTable(), 3) {
		t.Fatal("empty table must yield nothing")
	}
}

package catalog

import (
	"fmt"
	"iter"
	"sort"
)

// QuantityMap maps a generic quantity name (objectId, ra, dec, ...) to the
// native column that holds it in a particular catalog. Quantities without an
// entry are assumed to use their own name.
type QuantityMap map[string]string

// Native returns the native column name for quantity q.
func (m QuantityMap) Native(q string) string {
	if n, ok := m[q]; ok && n != "" {
		return n
	}
	return q
}

// Natives maps each quantity to its native column name.
func (m QuantityMap) Natives(quantities ...string) []string {
	out := make([]string, len(quantities))
	for i, q := range quantities {
		out[i] = m.Native(q)
	}
	return out
}

// Select returns a table holding quantities in order, each renamed from its
// native column to the quantity name.
func (m QuantityMap) Select(t *Table, quantities ...string) (*Table, error) {
	cols := make([]*Column, len(quantities))
	for i, q := range quantities {
		c, err := t.Require(m.Native(q))
		if err != nil {
			return nil, fmt.Errorf("quantity %q: %w", q, err)
		}
		cols[i] = c.Renamed(q)
	}
	return NewTable(cols...)
}

// String lists the non-identity mappings, sorted.
func (m QuantityMap) String() string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != "" && v != k {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	s := "{"
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += k + "=" + m[k]
	}
	return s + "}"
}

// Batches yields consecutive row ranges of at most size rows as the offset of
// the first row and a table sharing storage with t. A non-positive size
// yields the whole table once.
func Batches(t *Table, size int) iter.Seq2[int, *Table] {
	return func(yield func(int, *Table) bool) {
		if size <= 0 {
			size = t.Len()
		}
		for start := 0; start < t.Len(); start += size {
			if !yield(start, t.Slice(start, start+size)) {
				return
			}
		}
	}
}

// Iterate selects quantities through m and yields them in batches.
func Iterate(t *Table, m QuantityMap, size int, quantities ...string) (iter.Seq2[int, *Table], error) {
	sel, err := m.Select(t, quantities...)
	if err != nil {
		return nil, err
	}
	return Batches(sel, size), nil
}

package catalog

import "fmt"

// Concat stacks tables vertically. The result has the union of all column
// names in order of first appearance, with kinds promoted so every part
// converts (int64 and float64 give float64, anything with string gives
// string). Rows from a part that lacks a column are null there. Row order is
// part order, then each part's own order; the result is indexed 0..N-1.
func Concat(parts ...*Table) (*Table, error) {
	var names []string
	kinds := make(map[string]Kind)
	total := 0
	for _, p := range parts {
		total += p.Len()
		for _, c := range p.columns {
			k, ok := kinds[c.Name]
			if !ok {
				names = append(names, c.Name)
				kinds[c.Name] = c.Kind
				continue
			}
			kinds[c.Name] = promote(k, c.Kind)
		}
	}

	out := &Table{rows: total, index: make(map[string]int, len(names))}
	for _, name := range names {
		col := newColumn(name, kinds[name], total)
		for pi, p := range parts {
			src, ok := p.Column(name)
			if !ok {
				col.appendNulls(p.Len())
				continue
			}
			if err := col.appendFrom(src); err != nil {
				return nil, fmt.Errorf("concat part %d: %w", pi, err)
			}
		}
		if err := out.add(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// newColumn returns an empty column with room for capacity rows.
func newColumn(name string, kind Kind, capacity int) *Column {
	c := &Column{Name: name, Kind: kind}
	switch kind {
	case Int64:
		c.Ints = make([]int64, 0, capacity)
	case Float64:
		c.Floats = make([]float64, 0, capacity)
	case String:
		c.Strings = make([]string, 0, capacity)
	case Bool:
		c.Bools = make([]bool, 0, capacity)
	}
	return c
}

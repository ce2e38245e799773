// Package catalog holds the in-memory columnar table shared by the merge and
// match stages, the file formats it is read from and written to, and a
// batch adapter that exposes a table under a generic quantity mapping.
//
// A Table is built once by a reader, the merger or the matcher and must not be
// modified after it is handed to another component. Methods that derive a new
// table share unchanged column storage with the source.
package catalog

import (
	"fmt"
	"math"
)

// Table is an ordered set of equal-length columns.
type Table struct {
	rows    int
	columns []*Column
	index   map[string]int
}

// NewTable assembles columns into a table. Every column must have the same
// length and a distinct name.
func NewTable(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if i == 0 {
			t.rows = c.Len()
		}
		if err := t.add(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNewTable is NewTable that panics on error, for fixtures and tests.
func MustNewTable(cols ...*Column) *Table {
	t, err := NewTable(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) add(c *Column) error {
	if c.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.rows)
	}
	if c.Null != nil && len(c.Null) != t.rows {
		return fmt.Errorf("column %q null mask has %d rows, table has %d", c.Name, len(c.Null), t.rows)
	}
	if _, dup := t.index[c.Name]; dup {
		return fmt.Errorf("duplicate column %q", c.Name)
	}
	t.index[c.Name] = len(t.columns)
	t.columns = append(t.columns, c)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// Names returns column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The columns must not be modified.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Require returns the named column or an error wrapping ErrMissingColumn.
func (t *Table) Require(name string) (*Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
	}
	return c, nil
}

// WithColumns returns a new table with cols added. A column whose name already
// exists replaces the old one in place; new names are appended in order.
func (t *Table) WithColumns(cols ...*Column) (*Table, error) {
	out := &Table{rows: t.rows, index: make(map[string]int, len(t.columns)+len(cols))}
	if len(t.columns) == 0 && len(cols) > 0 {
		out.rows = cols[0].Len()
	}
	replace := make(map[string]*Column, len(cols))
	for _, c := range cols {
		if t.Has(c.Name) {
			replace[c.Name] = c
		}
	}
	for _, c := range t.columns {
		if r, ok := replace[c.Name]; ok {
			c = r
		}
		if err := out.add(c); err != nil {
			return nil, err
		}
	}
	for _, c := range cols {
		if _, ok := replace[c.Name]; ok {
			continue
		}
		if err := out.add(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Without returns a new table without the named columns. Unknown names are ignored.
func (t *Table) Without(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Table{rows: t.rows, index: make(map[string]int, len(t.columns))}
	for _, c := range t.columns {
		if !drop[c.Name] {
			out.index[c.Name] = len(out.columns)
			out.columns = append(out.columns, c)
		}
	}
	return out
}

// Select returns a table holding only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{rows: t.rows, index: make(map[string]int, len(names))}
	for _, n := range names {
		c, err := t.Require(n)
		if err != nil {
			return nil, err
		}
		if err := out.add(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Take returns a new table holding rows idx, in that order.
func (t *Table) Take(idx []int) *Table {
	out := &Table{rows: len(idx), index: make(map[string]int, len(t.columns))}
	for _, c := range t.columns {
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, c.take(idx))
	}
	return out
}

// Slice returns rows [start, end) sharing storage with t.
func (t *Table) Slice(start, end int) *Table {
	if start < 0 {
		start = 0
	}
	if end > t.rows {
		end = t.rows
	}
	if start > end {
		start = end
	}
	out := &Table{rows: end - start, index: make(map[string]int, len(t.columns))}
	for _, c := range t.columns {
		out.index[c.Name] = len(out.columns)
		out.columns = append(out.columns, c.slice(start, end))
	}
	return out
}

// Float64s returns a copy of the named column as float64. Nulls become NaN.
func (t *Table) Float64s(name string) ([]float64, error) {
	c, err := t.Require(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, c.Len())
	if c.Kind == Float64 {
		copy(out, c.Floats)
		return out, nil
	}
	for i := range out {
		if c.IsNull(i) {
			out[i] = math.NaN()
			continue
		}
		if out[i], err = c.Float64At(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Int64s returns a copy of the named column as int64. Nulls are an error.
func (t *Table) Int64s(name string) ([]int64, error) {
	c, err := t.Require(name)
	if err != nil {
		return nil, err
	}
	out := make([]int64, c.Len())
	for i := range out {
		if out[i], err = c.Int64At(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Strings returns the named column in canonical string form.
func (t *Table) Strings(name string) ([]string, error) {
	c, err := t.Require(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.Format(i)
	}
	return out, nil
}

// Distinct returns the distinct canonical values of a column in order of
// first appearance. Nulls count as one distinct value, reported as "".
func (t *Table) Distinct(name string) ([]string, error) {
	c, err := t.Require(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for i := 0; i < c.Len(); i++ {
		key := c.Format(i)
		if c.IsNull(i) {
			key = "\x00null"
		}
		if !seen[key] {
			seen[key] = true
			out = append(out, c.Format(i))
		}
	}
	return out, nil
}

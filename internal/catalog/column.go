package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the physical type of a column.
type Kind int

const (
	Int64 Kind = iota + 1
	Float64
	String
	Bool
)

func (k Kind) String() string {
	switch k {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column is a named, typed vector. Only the slice matching Kind is populated.
// Null is nil when every value is present; otherwise Null[i] marks row i as
// missing (float nulls also hold NaN).
type Column struct {
	Name    string
	Kind    Kind
	Ints    []int64
	Floats  []float64
	Strings []string
	Bools   []bool
	Null    []bool
}

// NewInt64Column wraps v without copying.
func NewInt64Column(name string, v []int64) *Column {
	return &Column{Name: name, Kind: Int64, Ints: v}
}

// NewFloat64Column wraps v without copying.
func NewFloat64Column(name string, v []float64) *Column {
	return &Column{Name: name, Kind: Float64, Floats: v}
}

// NewStringColumn wraps v without copying.
func NewStringColumn(name string, v []string) *Column {
	return &Column{Name: name, Kind: String, Strings: v}
}

// NewBoolColumn wraps v without copying.
func NewBoolColumn(name string, v []bool) *Column {
	return &Column{Name: name, Kind: Bool, Bools: v}
}

// FillInt64 returns an int64 column of n copies of v.
func FillInt64(name string, n int, v int64) *Column {
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = v
	}
	return NewInt64Column(name, vals)
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case Int64:
		return len(c.Ints)
	case Float64:
		return len(c.Floats)
	case String:
		return len(c.Strings)
	case Bool:
		return len(c.Bools)
	}
	return 0
}

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool {
	return c.Null != nil && c.Null[i]
}

// HasNulls reports whether any row is missing.
func (c *Column) HasNulls() bool {
	for _, n := range c.Null {
		if n {
			return true
		}
	}
	return false
}

// Format returns the canonical string form of row i. Nulls format as "".
// This is the representation used for id coercion and CSV output.
func (c *Column) Format(i int) string {
	if c.IsNull(i) {
		return ""
	}
	switch c.Kind {
	case Int64:
		return strconv.FormatInt(c.Ints[i], 10)
	case Float64:
		return formatFloat(c.Floats[i])
	case String:
		return c.Strings[i]
	case Bool:
		return strconv.FormatBool(c.Bools[i])
	}
	return ""
}

// formatFloat is the shortest round-trip form, keeping a decimal point on
// integral values so a written float column reads back as float.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}

// Value returns row i as int64, float64, string or bool, or nil when null.
func (c *Column) Value(i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch c.Kind {
	case Int64:
		return c.Ints[i]
	case Float64:
		return c.Floats[i]
	case String:
		return c.Strings[i]
	case Bool:
		return c.Bools[i]
	}
	return nil
}

// Float64At converts row i to float64. Strings are parsed.
func (c *Column) Float64At(i int) (float64, error) {
	if c.IsNull(i) {
		return math.NaN(), nil
	}
	switch c.Kind {
	case Int64:
		return float64(c.Ints[i]), nil
	case Float64:
		return c.Floats[i], nil
	case Bool:
		if c.Bools[i] {
			return 1, nil
		}
		return 0, nil
	case String:
		v, err := strconv.ParseFloat(c.Strings[i], 64)
		if err != nil {
			return 0, fmt.Errorf("column %q row %d: %w", c.Name, i, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("column %q has unknown kind %v", c.Name, c.Kind)
}

// Int64At converts row i to int64. Floats must be integral; strings are parsed.
func (c *Column) Int64At(i int) (int64, error) {
	if c.IsNull(i) {
		return 0, fmt.Errorf("column %q row %d: null value", c.Name, i)
	}
	switch c.Kind {
	case Int64:
		return c.Ints[i], nil
	case Float64:
		v := c.Floats[i]
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("column %q row %d: %v is not an integer", c.Name, i, v)
		}
		// -2^63 is exact in float64; 2^63 is the first value past the range.
		if v < math.MinInt64 || v >= -math.MinInt64 {
			return 0, fmt.Errorf("column %q row %d: %v is out of int64 range", c.Name, i, v)
		}
		return int64(v), nil
	case Bool:
		if c.Bools[i] {
			return 1, nil
		}
		return 0, nil
	case String:
		v, err := strconv.ParseInt(c.Strings[i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("column %q row %d: %w", c.Name, i, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("column %q has unknown kind %v", c.Name, c.Kind)
}

// Renamed returns a copy of the column header under a new name. Values are shared.
func (c *Column) Renamed(name string) *Column {
	out := *c
	out.Name = name
	return &out
}

func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Int64:
		out.Ints = make([]int64, len(idx))
		for j, i := range idx {
			out.Ints[j] = c.Ints[i]
		}
	case Float64:
		out.Floats = make([]float64, len(idx))
		for j, i := range idx {
			out.Floats[j] = c.Floats[i]
		}
	case String:
		out.Strings = make([]string, len(idx))
		for j, i := range idx {
			out.Strings[j] = c.Strings[i]
		}
	case Bool:
		out.Bools = make([]bool, len(idx))
		for j, i := range idx {
			out.Bools[j] = c.Bools[i]
		}
	}
	if c.Null != nil {
		out.Null = make([]bool, len(idx))
		for j, i := range idx {
			out.Null[j] = c.Null[i]
		}
	}
	return out
}

func (c *Column) slice(start, end int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Int64:
		out.Ints = c.Ints[start:end:end]
	case Float64:
		out.Floats = c.Floats[start:end:end]
	case String:
		out.Strings = c.Strings[start:end:end]
	case Bool:
		out.Bools = c.Bools[start:end:end]
	}
	if c.Null != nil {
		out.Null = c.Null[start:end:end]
	}
	return out
}

// markNulls extends the null mask to the current length, allocating it if needed.
func (c *Column) markNulls(before int, nulls ...bool) {
	if c.Null == nil {
		c.Null = make([]bool, before, before+len(nulls))
	}
	c.Null = append(c.Null, nulls...)
}

func (c *Column) appendNulls(n int) {
	before := c.Len()
	switch c.Kind {
	case Int64:
		c.Ints = append(c.Ints, make([]int64, n)...)
	case Float64:
		for i := 0; i < n; i++ {
			c.Floats = append(c.Floats, math.NaN())
		}
	case String:
		c.Strings = append(c.Strings, make([]string, n)...)
	case Bool:
		c.Bools = append(c.Bools, make([]bool, n)...)
	}
	nulls := make([]bool, n)
	for i := range nulls {
		nulls[i] = true
	}
	c.markNulls(before, nulls...)
}

// appendFrom appends every row of src, converting to c.Kind.
func (c *Column) appendFrom(src *Column) error {
	before := c.Len()
	n := src.Len()
	for i := 0; i < n; i++ {
		if src.IsNull(i) {
			c.appendNulls(1)
			continue
		}
		switch c.Kind {
		case Int64:
			v, err := src.Int64At(i)
			if err != nil {
				return err
			}
			c.Ints = append(c.Ints, v)
		case Float64:
			v, err := src.Float64At(i)
			if err != nil {
				return err
			}
			c.Floats = append(c.Floats, v)
		case String:
			c.Strings = append(c.Strings, src.Format(i))
		case Bool:
			if src.Kind != Bool {
				return fmt.Errorf("column %q: cannot convert %v to bool", src.Name, src.Kind)
			}
			c.Bools = append(c.Bools, src.Bools[i])
		}
		if c.Null != nil {
			c.Null = append(c.Null, false)
		}
	}
	if c.Null != nil && len(c.Null) != c.Len() {
		return fmt.Errorf("column %q: null mask length %d != %d (appended from %d)", c.Name, len(c.Null), c.Len(), before)
	}
	return nil
}

// promote returns the narrowest kind both a and b convert to without loss of
// meaning: bool < int64 < float64, and anything with string becomes string.
func promote(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a == String || b == String {
		return String
	}
	if a == Float64 || b == Float64 {
		return Float64
	}
	return Int64
}

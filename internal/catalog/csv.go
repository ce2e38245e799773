package catalog

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/banshee-data/truthmatch/internal/fsutil"
)

// CSV is a header-first comma separated table, optionally gzip compressed.
// Input may be UTF-8 with or without a BOM, or UTF-16 with a BOM. Column kinds
// are inferred from the values: int64 if every non-empty cell parses as an
// integer, then float64, then bool (true/false), otherwise string. Empty cells
// are null. Columns named in Text skip inference and are read as strings.
type CSV struct {
	Gzip bool
	Text []string
}

// Read implements Format.
func (c CSV) Read(fsys fsutil.FileSystem, path string, columns []string) (*Table, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if c.Gzip {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return c.decode(r, columns)
}

func (c CSV) decode(r io.Reader, columns []string) (*Table, error) {
	// BOMOverride switches to UTF-16 when a UTF-16 BOM is present and strips
	// a UTF-8 BOM.
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(dec)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file: no header row")
		}
		return nil, fmt.Errorf("header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	idx, err := columnFilter(header, columns)
	if err != nil {
		return nil, err
	}

	cells := make([][]string, len(idx))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for j, p := range idx {
			cells[j] = append(cells[j], rec[p])
		}
	}

	cols := make([]*Column, len(idx))
	for j, p := range idx {
		if slices.Contains(c.Text, header[p]) {
			cols[j] = textColumn(header[p], cells[j])
			continue
		}
		cols[j] = inferColumn(header[p], cells[j])
	}
	return NewTable(cols...)
}

// textColumn keeps values verbatim. Empty cells are null.
func textColumn(name string, vals []string) *Column {
	col := NewStringColumn(name, append([]string(nil), vals...))
	if slices.Contains(vals, "") {
		col.Null = make([]bool, len(vals))
		for i, v := range vals {
			col.Null[i] = v == ""
		}
	}
	return col
}

// inferColumn picks the narrowest kind every non-empty value parses as.
func inferColumn(name string, vals []string) *Column {
	isInt, isFloat, isBool := true, true, true
	present := 0
	for _, v := range vals {
		if v == "" {
			continue
		}
		present++
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			lv := strings.ToLower(v)
			isBool = lv == "true" || lv == "false"
		}
	}

	var col *Column
	switch {
	case present == 0:
		col = NewStringColumn(name, make([]string, len(vals)))
	case isInt:
		ints := make([]int64, len(vals))
		for i, v := range vals {
			if v != "" {
				ints[i], _ = strconv.ParseInt(v, 10, 64)
			}
		}
		col = NewInt64Column(name, ints)
	case isFloat:
		floats := make([]float64, len(vals))
		for i, v := range vals {
			if v == "" {
				floats[i] = math.NaN()
				continue
			}
			floats[i], _ = strconv.ParseFloat(v, 64)
		}
		col = NewFloat64Column(name, floats)
	case isBool:
		bools := make([]bool, len(vals))
		for i, v := range vals {
			bools[i] = strings.EqualFold(v, "true")
		}
		col = NewBoolColumn(name, bools)
	default:
		col = NewStringColumn(name, append([]string(nil), vals...))
	}

	if present < len(vals) {
		col.Null = make([]bool, len(vals))
		for i, v := range vals {
			col.Null[i] = v == ""
		}
	}
	return col
}

// Write implements Format.
func (c CSV) Write(fsys fsutil.FileSystem, path string, t *Table) error {
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if c.Gzip {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if err := c.encode(w, t); err != nil {
		f.Close()
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("gzip: %w", err)
		}
	}
	return f.Close()
}

func (c CSV) encode(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	rec := make([]string, t.NumColumns())
	for i := 0; i < t.Len(); i++ {
		for j, col := range t.columns {
			rec[j] = col.Format(i)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

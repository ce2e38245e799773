package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/truthmatch/internal/fsutil"
)

// Format reads and writes tables in one on-disk representation.
type Format interface {
	// Read loads the file at path. When columns is non-empty only those
	// columns are loaded, in that order, and each must exist.
	Read(fsys fsutil.FileSystem, path string, columns []string) (*Table, error)

	// Write stores t at path, replacing any existing file.
	Write(fsys fsutil.FileSystem, path string, t *Table) error
}

// Extensions lists the file extensions with a registered format.
var Extensions = []string{"csv", "csv.gz", "sqlite", "db"}

// Ext returns the catalog extension of path ("csv", "csv.gz", "sqlite", "db"),
// or "" if the name has no registered extension.
func Ext(path string) string {
	base := strings.ToLower(filepath.Base(path))
	for _, ext := range []string{"csv.gz", "csv", "sqlite", "db"} {
		if strings.HasSuffix(base, "."+ext) {
			return ext
		}
	}
	return ""
}

// Supported reports whether path has a registered format.
func Supported(path string) bool { return Ext(path) != "" }

// StripExt removes the catalog extension from a file name, if any.
func StripExt(name string) string {
	if ext := Ext(name); ext != "" {
		return name[:len(name)-len(ext)-1]
	}
	return name
}

// FormatFor returns the format registered for path's extension.
func FormatFor(path string) (Format, error) {
	switch Ext(path) {
	case "csv":
		return CSV{}, nil
	case "csv.gz":
		return CSV{Gzip: true}, nil
	case "sqlite", "db":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ReadFile loads path with the format chosen by its extension.
func ReadFile(fsys fsutil.FileSystem, path string, columns ...string) (*Table, error) {
	return ReadFileText(fsys, path, nil, columns...)
}

// ReadFileText is ReadFile with the text columns kept verbatim as strings
// where the format would otherwise infer a kind. Identifier columns are read
// this way so values such as 00042 keep their exact form.
func ReadFileText(fsys fsutil.FileSystem, path string, text []string, columns ...string) (*Table, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	if c, ok := f.(CSV); ok && len(text) > 0 {
		c.Text = text
		f = c
	}
	t, err := f.Read(fsys, path, columns)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// WriteFile stores t at path with the format chosen by its extension. The
// table is written to a temporary file in the same directory and renamed into
// place, so path either holds the complete table or is left untouched.
func WriteFile(fsys fsutil.FileSystem, path string, t *Table) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	tmp := tmpName(path)
	if fsys.Exists(tmp) {
		if err := fsys.Remove(tmp); err != nil {
			return fmt.Errorf("remove stale %s: %w", tmp, err)
		}
	}
	if err := f.Write(fsys, tmp, t); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// tmpName keeps the extension last so FormatFor still recognises the file.
func tmpName(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, ".tmp-"+base)
}

// columnFilter maps requested column names to their position in header.
func columnFilter(header, columns []string) ([]int, error) {
	if len(columns) == 0 {
		idx := make([]int, len(header))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		p, ok := pos[c]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, c)
		}
		idx[i] = p
	}
	return idx, nil
}

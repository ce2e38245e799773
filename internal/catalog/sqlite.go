package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/truthmatch/internal/fsutil"
)

// TableName is the table SQLite catalogs are written to, and read from when
// a file holds more than one table.
const TableName = "catalog"

// SQLite stores a catalog as one table in an SQLite database file. The file
// must live on the local filesystem.
type SQLite struct{}

// Read implements Format.
func (SQLite) Read(fsys fsutil.FileSystem, path string, columns []string) (*Table, error) {
	if !fsutil.IsLocal(fsys) {
		return nil, errors.New("sqlite catalogs require the local filesystem")
	}
	// sql.Open would silently create a missing file.
	if _, err := fsys.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	name, err := sourceTable(db)
	if err != nil {
		return nil, err
	}
	header, kinds, err := tableInfo(db, name)
	if err != nil {
		return nil, err
	}
	idx, err := columnFilter(header, columns)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(idx))
	cols := make([]*Column, len(idx))
	for j, p := range idx {
		names[j] = quoteIdent(header[p])
		cols[j] = newColumn(header[p], kinds[p], 0)
	}
	if len(idx) == 0 {
		return NewTable()
	}

	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(names, ", "), quoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	vals := make([]any, len(idx))
	ptrs := make([]any, len(idx))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for j, v := range vals {
			if err := appendSQLValue(cols[j], v); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewTable(cols...)
}

// sourceTable returns TableName if present, else the only user table.
func sourceTable(db *sql.DB) (string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return "", err
		}
		if n == TableName {
			return n, nil
		}
		tables = append(tables, n)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(tables) != 1 {
		return "", fmt.Errorf("expected a %q table or exactly one table, found %d", TableName, len(tables))
	}
	return tables[0], nil
}

// tableInfo returns column names and kinds from their declared types.
func tableInfo(db *sql.DB, table string) ([]string, []Kind, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var names []string
	var kinds []Kind
	for rows.Next() {
		var (
			cid     int
			name    string
			decl    string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &decl, &notnull, &dflt, &pk); err != nil {
			return nil, nil, err
		}
		names = append(names, name)
		kinds = append(kinds, kindForDecl(decl))
	}
	return names, kinds, rows.Err()
}

// kindForDecl follows SQLite's type affinity rules, with BOOL declared types
// mapped to Bool.
func kindForDecl(decl string) Kind {
	d := strings.ToUpper(decl)
	switch {
	case strings.Contains(d, "BOOL"):
		return Bool
	case strings.Contains(d, "INT"):
		return Int64
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return String
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return Float64
	case d == "":
		return String
	}
	return Float64
}

func appendSQLValue(c *Column, v any) error {
	if v == nil {
		c.appendNulls(1)
		return nil
	}
	var src *Column
	switch x := v.(type) {
	case int64:
		src = NewInt64Column(c.Name, []int64{x})
	case float64:
		src = NewFloat64Column(c.Name, []float64{x})
	case bool:
		src = NewBoolColumn(c.Name, []bool{x})
	case string:
		src = NewStringColumn(c.Name, []string{x})
	case []byte:
		src = NewStringColumn(c.Name, []string{string(x)})
	default:
		return fmt.Errorf("column %q: unsupported sqlite value %T", c.Name, v)
	}
	if c.Kind == Bool && src.Kind == Int64 {
		src = NewBoolColumn(c.Name, []bool{src.Ints[0] != 0})
	}
	return c.appendFrom(src)
}

// Write implements Format.
func (SQLite) Write(fsys fsutil.FileSystem, path string, t *Table) error {
	if !fsutil.IsLocal(fsys) {
		return errors.New("sqlite catalogs require the local filesystem")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	defs := make([]string, t.NumColumns())
	marks := make([]string, t.NumColumns())
	names := make([]string, t.NumColumns())
	for j, c := range t.columns {
		names[j] = quoteIdent(c.Name)
		defs[j] = names[j] + " " + sqlType(c.Kind)
		marks[j] = "?"
	}
	if _, err := db.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(TableName), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(TableName), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, t.NumColumns())
	for i := 0; i < t.Len(); i++ {
		for j, c := range t.columns {
			args[j] = sqlValue(c, i)
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func sqlType(k Kind) string {
	switch k {
	case Int64:
		return "INTEGER"
	case Float64:
		return "REAL"
	case Bool:
		return "BOOLEAN"
	}
	return "TEXT"
}

// sqlValue stores NaN as NULL, since SQLite has no NaN.
func sqlValue(c *Column, i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch c.Kind {
	case Float64:
		if math.IsNaN(c.Floats[i]) {
			return nil
		}
	case Bool:
		if c.Bools[i] {
			return int64(1)
		}
		return int64(0)
	}
	return c.Value(i)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

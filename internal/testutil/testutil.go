// Package testutil provides shared test utilities and catalog fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/truthmatch/internal/fsutil"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// CSV builds a CSV document from a header line and data lines, each given
// without a trailing newline.
func CSV(header string, rows ...string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteFiles writes each name → body pair under dir.
func WriteFiles(t testing.TB, fsys fsutil.FileSystem, dir string, files map[string]string) {
	t.Helper()
	AssertNoError(t, fsys.MkdirAll(dir, 0755))
	for name, body := range files {
		AssertNoError(t, fsys.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
}

// TractFiles returns a small three-type truth directory for the given tract:
// two galaxies in partition 9816, one star and one supernova.
func TractFiles(tract string) map[string]string {
	return map[string]string{
		"truth_gal_hp9816.csv": CSV("id,ra,dec,tract,redshift",
			"11,55.0,-30.0,"+tract+",0.5",
			"12,55.1,-30.1,"+tract+",0.7"),
		"star_tract" + tract + ".csv": CSV("id,ra,dec,tract",
			"9001,55.2,-30.2,"+tract),
		"sn_tract" + tract + ".csv": CSV("id,ra,dec,tract",
			"MS_1,55.3,-30.3,"+tract),
	}
}

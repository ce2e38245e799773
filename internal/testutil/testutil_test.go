package testutil

import (
	"errors"
	"testing"

	"github.com/banshee-data/truthmatch/internal/fsutil"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
}

func TestAssertNoError_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("unexpected error", func(t *testing.T) {
		AssertNoError(t, errors.New("boom"))
	})
	if ok {
		t.Fatal("expected subtest to fail when error is non-nil")
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))
}

func TestAssertError_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("missing expected error", func(t *testing.T) {
		AssertError(t, nil)
	})
	if ok {
		t.Fatal("expected subtest to fail when error is nil")
	}
}

func TestCSV(t *testing.T) {
	t.Parallel()

	got := CSV("id,ra", "1,2.5", "2,3.5")
	if want := "id,ra\n1,2.5\n2,3.5\n"; got != want {
		t.Errorf("CSV = %q, want %q", got, want)
	}
	if got := CSV("id"); got != "id\n" {
		t.Errorf("header-only CSV = %q", got)
	}
}

func TestWriteFiles(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	WriteFiles(t, mfs, "/truth/3828", TractFiles("3828"))

	entries, err := mfs.ReadDir("/truth/3828")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 files, got %d", len(entries))
	}
	if entries[0].Name() != "sn_tract3828.csv" {
		t.Errorf("first entry = %q", entries[0].Name())
	}
}

// Package truth merges the per-file truth catalogs of one region into a
// single table with provenance columns.
package truth

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/banshee-data/truthmatch/internal/catalog"
	"github.com/banshee-data/truthmatch/internal/fsutil"
	"github.com/banshee-data/truthmatch/internal/monitoring"
)

// Columns added or rewritten by Merge.
const (
	ColID                      = "id"
	ColTract                   = "tract"
	ColTruthType               = "truth_type"
	ColSourcePartitionID       = "cosmodc2_hp"
	ColSourcePartitionObjectID = "cosmodc2_id"
)

// Unclassified is the truth type of a file that matches no prefix.
const Unclassified = 0

// NoPartition is the partition id and partition object id of rows that have none.
const NoPartition = -1

// DefaultTypes are the file name prefixes of galaxy, star and supernova
// truth files, in type order.
var DefaultTypes = []string{"truth_", "star_", "sn_"}

var partitionPattern = regexp.MustCompile(`_hp(\d+)\b`)

// Classify returns the 1-based position of the last prefix in types that name
// starts with, or Unclassified if none does. Every prefix is tested, so a
// later prefix wins over an earlier overlapping one.
func Classify(name string, types []string) int {
	code := Unclassified
	for i, prefix := range types {
		if strings.HasPrefix(name, prefix) {
			code = i + 1
		}
	}
	return code
}

// PartitionID extracts the source partition id embedded in a file name as
// `_hp<digits>` followed by a word boundary.
func PartitionID(name string) (int64, bool) {
	m := partitionPattern.FindStringSubmatch(name)
	if m == nil {
		return NoPartition, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return NoPartition, false
	}
	return id, true
}

// Options configures Merge.
type Options struct {
	// Types defaults to DefaultTypes.
	Types []string

	// Validate requires exactly one distinct tract and no unclassified rows.
	Validate bool

	Logger monitoring.Logger

	// FS defaults to the OS filesystem.
	FS fsutil.FileSystem
}

func (o Options) types() []string {
	if len(o.Types) == 0 {
		return DefaultTypes
	}
	return o.Types
}

func (o Options) fs() fsutil.FileSystem {
	if o.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return o.FS
}

// Merge loads every catalog file in dir in lexicographic name order and
// concatenates them, preserving each file's row order. Each row gains
// truth_type, cosmodc2_hp and cosmodc2_id, and id is coerced to its string
// form. Subdirectories and hidden files are skipped.
func Merge(ctx context.Context, dir string, opts Options) (*catalog.Table, error) {
	log := monitoring.OrDefault(opts.Logger)
	fsys := opts.fs()
	types := opts.types()

	log.Infof("merging all files in %s", dir)
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var parts []*catalog.Table
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Infof("loading %s", e.Name())
		part, err := loadFile(fsys, filepath.Join(dir, e.Name()), types, log)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no catalog files in %s", dir)
	}

	merged, err := catalog.Concat(parts...)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", dir, err)
	}

	if opts.Validate {
		if err := validate(merged); err != nil {
			return nil, fmt.Errorf("merge %s: %w", dir, err)
		}
	}
	log.Infof("merged %d rows from %d files in %s", merged.Len(), len(parts), dir)
	return merged, nil
}

// loadFile reads one catalog file and adds the provenance columns.
func loadFile(fsys fsutil.FileSystem, path string, types []string, log monitoring.Logger) (*catalog.Table, error) {
	name := filepath.Base(path)
	code := Classify(name, types)

	partition := int64(NoPartition)
	if code == 1 {
		if hp, ok := PartitionID(name); ok {
			partition = hp
		} else {
			log.Warnf("cannot identify source partition id in %s", name)
		}
	}

	t, err := catalog.ReadFileText(fsys, path, []string{ColID})
	if err != nil {
		return nil, err
	}
	id, err := t.Require(ColID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	strIDs := make([]string, id.Len())
	for i := range strIDs {
		strIDs[i] = id.Format(i)
	}

	var partObj *catalog.Column
	if code == 1 {
		ids := make([]int64, len(strIDs))
		for i, s := range strIDs {
			if ids[i], err = strconv.ParseInt(s, 10, 64); err != nil {
				return nil, fmt.Errorf("%s: row %d: source partition object id: %w", name, i, err)
			}
		}
		partObj = catalog.NewInt64Column(ColSourcePartitionObjectID, ids)
	} else {
		partObj = catalog.FillInt64(ColSourcePartitionObjectID, t.Len(), NoPartition)
	}

	return t.WithColumns(
		catalog.NewStringColumn(ColID, strIDs),
		catalog.FillInt64(ColTruthType, t.Len(), int64(code)),
		catalog.FillInt64(ColSourcePartitionID, t.Len(), partition),
		partObj,
	)
}

// ErrNoTract is wrapped when a validated merge has no tract column.
var ErrNoTract = errors.New("no tract column")

func validate(t *catalog.Table) error {
	if !t.Has(ColTract) {
		return fmt.Errorf("%w: %w", catalog.ErrValidation, ErrNoTract)
	}
	tracts, err := t.Distinct(ColTract)
	if err != nil {
		return err
	}
	if len(tracts) != 1 {
		return fmt.Errorf("%w: expected one tract, found %d (%s)", catalog.ErrValidation, len(tracts), strings.Join(tracts, ", "))
	}

	types, err := t.Int64s(ColTruthType)
	if err != nil {
		return err
	}
	for i, v := range types {
		if v <= Unclassified {
			return fmt.Errorf("%w: row %d has unclassified truth type", catalog.ErrValidation, i)
		}
	}
	return nil
}

package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/truthmatch/internal/catalog"
	"github.com/banshee-data/truthmatch/internal/fsutil"
)

// TractPlaceholder is replaced by the tract number in path templates.
const TractPlaceholder = "{}"

// Region is one unit of work: a truth input and an optional object catalog.
type Region struct {
	// Tract is the tract the paths were expanded for, empty for a single
	// untemplated run.
	Tract string

	// InputPath is a truth directory, or a merged truth file when matching only.
	InputPath string

	// ObjectPath is the object catalog to match against, empty to skip matching.
	ObjectPath string
}

// ParseTracts parses a comma separated list of tract numbers.
func ParseTracts(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid tract %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadTractList reads one tract number per line. Blank lines are ignored.
func ReadTractList(fsys fsutil.FileSystem, path string) ([]int, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tract list: %w", err)
	}
	var out []int
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		f := strings.TrimSpace(sc.Text())
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid tract %q", path, line, f)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}

// ExpandRegions substitutes each distinct tract into the input and object
// path templates. Tracts are de-duplicated and processed in ascending order.
// With no tracts the paths are used as given and one region is returned.
func ExpandRegions(inputTemplate, objectTemplate string, tracts []int) ([]Region, error) {
	if len(tracts) == 0 {
		return []Region{{InputPath: inputTemplate, ObjectPath: objectTemplate}}, nil
	}
	if !strings.Contains(inputTemplate, TractPlaceholder) {
		return nil, fmt.Errorf("input path %q has no %s placeholder for tracts", inputTemplate, TractPlaceholder)
	}
	if objectTemplate != "" && !strings.Contains(objectTemplate, TractPlaceholder) {
		return nil, fmt.Errorf("object catalog path %q has no %s placeholder for tracts", objectTemplate, TractPlaceholder)
	}

	seen := make(map[int]bool, len(tracts))
	var unique []int
	for _, t := range tracts {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}
	sort.Ints(unique)

	regions := make([]Region, len(unique))
	for i, t := range unique {
		s := strconv.Itoa(t)
		regions[i] = Region{
			Tract:      s,
			InputPath:  strings.ReplaceAll(inputTemplate, TractPlaceholder, s),
			ObjectPath: strings.ReplaceAll(objectTemplate, TractPlaceholder, s),
		}
	}
	return regions, nil
}

// OutputPath is where a region's table is written.
func OutputPath(dir, name, tract, format string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_tract%s.%s", name, tract, format))
}

// ClaimsPath is where a region's claims table is written.
func ClaimsPath(dir, name, tract, format string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_tract%s_claims.%s", name, tract, format))
}

// checkFormat rejects output formats with no registered writer.
func checkFormat(format string) error {
	if _, err := catalog.FormatFor("x." + format); err != nil {
		return err
	}
	return nil
}

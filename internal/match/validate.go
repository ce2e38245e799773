package match

import (
	"fmt"

	"github.com/banshee-data/truthmatch/internal/catalog"
)

// validate checks closure (every matched object id exists in the object
// catalog) and uniqueness coverage (the rows flagged unique are exactly the
// positions 0..N-1).
func validate(result *catalog.Table, objectIDs []int64) error {
	known := make(map[int64]struct{}, len(objectIDs))
	for _, id := range objectIDs {
		known[id] = struct{}{}
	}

	matched, err := result.Int64s(ColMatchObjectID)
	if err != nil {
		return err
	}
	for i, id := range matched {
		if id == Unmatched {
			continue
		}
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: row %d matched object %d which is not in the object catalog", catalog.ErrValidation, i, id)
		}
	}

	uc, err := result.Require(ColUnique)
	if err != nil {
		return err
	}
	next := 0
	for i := 0; i < result.Len(); i++ {
		if uc.IsNull(i) || !uc.Bools[i] {
			continue
		}
		if i != next {
			return fmt.Errorf("%w: unique rows do not cover position %d", catalog.ErrValidation, next)
		}
		next++
	}
	if next != result.Len() {
		return fmt.Errorf("%w: %d unique rows for %d truth rows", catalog.ErrValidation, next, result.Len())
	}
	return nil
}

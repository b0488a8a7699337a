package export

import (
	"fmt"
	"os"

	"github.com/hpungsan/stravagpx/internal/errors"
)

// Inventory is the set of regular file names present in the export directory
// when a run starts. It is not updated during the run.
type Inventory map[string]struct{}

// Snapshot creates dir if needed and lists the regular files in it.
func Snapshot(dir string) (Inventory, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewWriteFailed(dir, fmt.Errorf("failed to create export directory: %w", err))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewWriteFailed(dir, fmt.Errorf("failed to read export directory: %w", err))
	}

	inv := make(Inventory, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			inv[e.Name()] = struct{}{}
		}
	}
	return inv, nil
}

// Has reports whether name was present at snapshot time.
func (inv Inventory) Has(name string) bool {
	_, ok := inv[name]
	return ok
}

package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"tilestream/internal/tile"
)

// diskTier stores one file per tile in a flat directory, named by the
// tile's cache key. There is no eviction here; pruning old tiles is an
// external maintenance concern.
type diskTier struct {
	root string
}

func newDiskTier(root string) (*diskTier, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &diskTier{root: root}, nil
}

func (d *diskTier) path(coord tile.Coordinate) string {
	return filepath.Join(d.root, coord.CacheKey())
}

func (d *diskTier) read(coord tile.Coordinate) ([]byte, bool) {
	data, err := os.ReadFile(d.path(coord))
	if err != nil {
		return nil, false
	}
	return data, true
}

// write persists tile bytes atomically via a temp file rename. Tile
// content is immutable once fetched, so overwriting an existing file is
// safe and idempotent.
func (d *diskTier) write(coord tile.Coordinate, data []byte) error {
	path := d.path(coord)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write tile %s: %w", coord, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write tile %s: %w", coord, err)
	}
	return nil
}

// Package cache holds already-fetched tile bytes in two tiers: a bounded
// in-memory LRU in front of an unbounded on-disk store. It is the single
// source of truth for "do we already have these bytes" — it never reaches
// out to the network.
package cache

import (
	"sync"

	"go.uber.org/zap"

	"tilestream/internal/tile"
)

// TileCache is the two-tier byte cache. All operations run under one
// mutex, so concurrent workers serialize briefly against each other but
// can never deadlock.
type TileCache struct {
	mu   sync.Mutex
	mem  *memoryTier
	disk *diskTier
	log  *zap.Logger

	memHits  uint64
	diskHits uint64
	misses   uint64
	stored   uint64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	MemoryEntries int
	MemoryHits    uint64
	DiskHits      uint64
	Misses        uint64
	Stored        uint64
}

// New creates a TileCache rooted at dir with the given memory-tier entry
// budget. The cache directory is created if missing.
func New(dir string, memoryTiles int, log *zap.Logger) (*TileCache, error) {
	disk, err := newDiskTier(dir)
	if err != nil {
		return nil, err
	}
	log.Info("tile cache ready",
		zap.String("cache_dir", dir),
		zap.Int("memory_tiles", memoryTiles))
	return &TileCache{
		mem:  newMemoryTier(memoryTiles),
		disk: disk,
		log:  log,
	}, nil
}

// TryGet returns the cached bytes for coord if present in either tier.
// A memory hit touches the entry; a disk hit promotes the bytes into the
// memory tier. A miss returns false and has no side effects.
func (c *TileCache) TryGet(coord tile.Coordinate) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.mem.get(coord); ok {
		c.memHits++
		return data, true
	}
	if data, ok := c.disk.read(coord); ok {
		c.diskHits++
		c.mem.put(coord, data)
		return data, true
	}
	c.misses++
	return nil, false
}

// Store writes the bytes to disk and mirrors them into the memory tier.
func (c *TileCache) Store(coord tile.Coordinate, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.disk.write(coord, data); err != nil {
		return err
	}
	c.mem.put(coord, data)
	c.stored++
	return nil
}

func (c *TileCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		MemoryEntries: c.mem.len(),
		MemoryHits:    c.memHits,
		DiskHits:      c.diskHits,
		Misses:        c.misses,
		Stored:        c.stored,
	}
}

package cache

import (
	"container/list"

	"tilestream/internal/tile"
)

type entry struct {
	coord tile.Coordinate
	data  []byte
}

// memoryTier is a strict-LRU map of tile bytes with a fixed entry budget.
// The list front is most-recently-used. It carries no lock of its own;
// TileCache serializes every call.
type memoryTier struct {
	maxTiles int
	items    map[tile.Coordinate]*list.Element
	order    *list.List
}

func newMemoryTier(maxTiles int) *memoryTier {
	return &memoryTier{
		maxTiles: maxTiles,
		items:    make(map[tile.Coordinate]*list.Element),
		order:    list.New(),
	}
}

// get returns the cached bytes and marks the entry most-recently-used.
func (m *memoryTier) get(coord tile.Coordinate) ([]byte, bool) {
	elem, ok := m.items[coord]
	if !ok {
		return nil, false
	}
	m.order.MoveToFront(elem)
	return elem.Value.(*entry).data, true
}

// put inserts or refreshes an entry, evicting the least-recently-used one
// when the tier is at capacity.
func (m *memoryTier) put(coord tile.Coordinate, data []byte) {
	if elem, ok := m.items[coord]; ok {
		elem.Value.(*entry).data = data
		m.order.MoveToFront(elem)
		return
	}

	if m.order.Len() >= m.maxTiles {
		oldest := m.order.Back()
		if oldest != nil {
			delete(m.items, oldest.Value.(*entry).coord)
			m.order.Remove(oldest)
		}
	}

	m.items[coord] = m.order.PushFront(&entry{coord: coord, data: data})
}

func (m *memoryTier) len() int {
	return m.order.Len()
}

package stream

import "tilestream/internal/tile"

// snapshot is one immutable published desired-tile set. Coordinates are
// kept in publish order (highest priority first) with a membership set
// alongside for the mid-iteration re-checks workers do.
type snapshot struct {
	version uint64
	coords  []tile.Coordinate
	members map[tile.Coordinate]struct{}
}

func newSnapshot(version uint64, coords []tile.Coordinate) *snapshot {
	s := &snapshot{
		version: version,
		coords:  append([]tile.Coordinate(nil), coords...),
		members: make(map[tile.Coordinate]struct{}, len(coords)),
	}
	for _, c := range s.coords {
		s.members[c] = struct{}{}
	}
	return s
}

func (s *snapshot) contains(c tile.Coordinate) bool {
	_, ok := s.members[c]
	return ok
}

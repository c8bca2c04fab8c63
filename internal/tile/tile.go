// Package tile defines the quad-tree addressing scheme shared by the
// fetcher, the byte cache and the atlas. A Coordinate identifies one tile
// in the standard XYZ web-map scheme: at zoom z there are 2^z tiles per
// axis.
package tile

import (
	"fmt"
	"strings"
)

// Coordinate identifies a single tile. It is a value type and is used
// directly as a map key throughout the engine.
type Coordinate struct {
	Z uint32
	X uint32
	Y uint32
}

// Valid reports whether X and Y are within range for the zoom level.
func (c Coordinate) Valid() bool {
	return c.Z < 32 && c.X < 1<<c.Z && c.Y < 1<<c.Z
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// URL returns the request URL for this tile on the given host. A host
// without a scheme gets the canonical https:// prefix.
func (c Coordinate) URL(host string) string {
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return fmt.Sprintf("%s/%d/%d/%d.png", strings.TrimSuffix(host, "/"), c.Z, c.X, c.Y)
}

// CacheKey returns the flat on-disk file name for this tile.
func (c Coordinate) CacheKey() string {
	return fmt.Sprintf("%d_%d_%d.png", c.Z, c.X, c.Y)
}

// Ancestor returns the coordinate levels steps up the quad tree, together
// with the sub-quadrant indices of c inside that ancestor. The quadrant
// indices range over [0, 2^levels) and address the sub-rectangle of the
// ancestor's tile that covers c, which is what level-of-detail fallback
// rendering needs.
func (c Coordinate) Ancestor(levels uint32) (parent Coordinate, qx, qy uint32) {
	parent = Coordinate{Z: c.Z - levels, X: c.X >> levels, Y: c.Y >> levels}
	qx = c.X & (1<<levels - 1)
	qy = c.Y & (1<<levels - 1)
	return parent, qx, qy
}

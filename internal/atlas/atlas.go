// Package atlas manages a fixed grid of tile-sized slots inside one
// GPU-resident texture. Capacity is set once at construction; loading a
// tile past capacity always evicts the least-recently-touched slot and
// never grows the texture.
//
// Thread safety: the Atlas is NOT thread-safe. Every method must be
// called from the render thread; fetch workers hand pixels over through
// the streaming layer's completion queue instead of touching it directly.
package atlas

import (
	"container/list"
	"fmt"
	"image"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"tilestream/internal/tile"
)

// UV is a normalized texture rectangle in [0,1]² space.
type UV struct {
	MinU, MinV float32
	MaxU, MaxV float32
}

// Uploader writes pixel data into a rectangular region of the atlas
// texture. The texture itself is owned by the host renderer.
type Uploader interface {
	Upload(dest image.Rectangle, pixels *image.RGBA)
}

// NoopUploader discards uploads. Useful for headless runs where only the
// byte cache matters, and for tests.
type NoopUploader struct{}

func (NoopUploader) Upload(image.Rectangle, *image.RGBA) {}

type slot struct {
	index int
	coord tile.Coordinate
}

// Atlas is the fixed-capacity slot pool. Occupied slots sit on an LRU
// list (front = most recently touched) mirrored by a coordinate map, so a
// slot's occupant is always findable by reverse lookup.
type Atlas struct {
	grid     int // slots per axis
	tileSize int // pixels per slot edge
	uploader Uploader
	log      *zap.Logger

	free     []int
	occupied map[tile.Coordinate]*list.Element
	order    *list.List

	evictions uint64
}

// New creates an Atlas of grid×grid slots, each tileSize pixels square.
// Both dimensions must be positive; this is the one construction-time
// invariant that fails fast instead of degrading.
func New(grid, tileSize int, uploader Uploader, log *zap.Logger) (*Atlas, error) {
	if grid <= 0 {
		return nil, fmt.Errorf("atlas grid must be positive, got %d", grid)
	}
	if tileSize <= 0 {
		return nil, fmt.Errorf("atlas tile size must be positive, got %d", tileSize)
	}

	free := make([]int, 0, grid*grid)
	for i := grid*grid - 1; i >= 0; i-- {
		free = append(free, i)
	}

	log.Info("atlas ready",
		zap.Int("grid", grid),
		zap.Int("tile_size", tileSize),
		zap.Int("capacity", grid*grid))
	return &Atlas{
		grid:     grid,
		tileSize: tileSize,
		uploader: uploader,
		log:      log,
		free:     free,
		occupied: make(map[tile.Coordinate]*list.Element),
		order:    list.New(),
	}, nil
}

// Capacity returns the fixed slot count.
func (a *Atlas) Capacity() int { return a.grid * a.grid }

// Len returns the number of occupied slots.
func (a *Atlas) Len() int { return len(a.occupied) }

// Evictions returns the number of slots reclaimed since construction.
func (a *Atlas) Evictions() uint64 { return a.evictions }

// IsLoaded reports whether coord currently occupies a slot.
func (a *Atlas) IsLoaded(coord tile.Coordinate) bool {
	_, ok := a.occupied[coord]
	return ok
}

// Touch marks coord's slot most-recently-used. No-op when not loaded.
func (a *Atlas) Touch(coord tile.Coordinate) {
	if elem, ok := a.occupied[coord]; ok {
		a.order.MoveToFront(elem)
	}
}

// SlotUV returns the normalized texture rectangle of coord's slot, or a
// zero rectangle when the tile is not loaded.
func (a *Atlas) SlotUV(coord tile.Coordinate) (UV, bool) {
	elem, ok := a.occupied[coord]
	if !ok {
		return UV{}, false
	}
	return a.indexUV(elem.Value.(*slot).index), true
}

// SubUV returns the quarter rectangle of coord's slot addressed by a
// one-level quadrant index, for rendering a direct child from its
// parent's pixels.
func (a *Atlas) SubUV(coord tile.Coordinate, qx, qy uint32) (UV, bool) {
	uv, ok := a.SlotUV(coord)
	if !ok {
		return UV{}, false
	}
	return subRect(uv, qx, qy, 1), true
}

// FallbackUV walks up the quad tree from coord until it finds a loaded
// ancestor, and returns the cumulative sub-rectangle of that ancestor's
// slot covering coord, along with the number of zoom levels skipped. The
// ancestor's slot is touched so steadily-used fallback imagery stays
// resident.
func (a *Atlas) FallbackUV(coord tile.Coordinate) (UV, uint32, bool) {
	for levels := uint32(1); levels <= coord.Z; levels++ {
		parent, qx, qy := coord.Ancestor(levels)
		uv, ok := a.SlotUV(parent)
		if !ok {
			continue
		}
		a.Touch(parent)
		return subRect(uv, qx, qy, levels), levels, true
	}
	return UV{}, 0, false
}

// Blit places decoded pixels into a slot for coord and uploads them to
// the texture. Already-loaded coordinates are only touched, so a tile
// completing twice (cache-hit racing a fetch) costs nothing. When no free
// slot remains, the least-recently-touched occupant is evicted — this is
// the single reclamation point for the whole engine.
func (a *Atlas) Blit(coord tile.Coordinate, pixels *image.RGBA) {
	if elem, ok := a.occupied[coord]; ok {
		a.order.MoveToFront(elem)
		return
	}

	var index int
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		oldest := a.order.Back()
		victim := oldest.Value.(*slot)
		delete(a.occupied, victim.coord)
		a.order.Remove(oldest)
		index = victim.index
		a.evictions++
		a.log.Debug("atlas slot evicted",
			zap.Stringer("tile", victim.coord),
			zap.Int("slot", index))
	}

	a.occupied[coord] = a.order.PushFront(&slot{index: index, coord: coord})

	px := pixels
	if b := px.Bounds(); b.Dx() != a.tileSize || b.Dy() != a.tileSize {
		// Tile servers occasionally return non-standard sizes; scale with
		// nearest-neighbor to keep the slot grid uniform.
		scaled := image.NewRGBA(image.Rect(0, 0, a.tileSize, a.tileSize))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), px, b, xdraw.Src, nil)
		px = scaled
	}

	sx := index % a.grid
	sy := index / a.grid
	dest := image.Rect(sx*a.tileSize, sy*a.tileSize, (sx+1)*a.tileSize, (sy+1)*a.tileSize)
	a.uploader.Upload(dest, px)
}

func (a *Atlas) indexUV(index int) UV {
	step := 1 / float32(a.grid)
	sx := float32(index % a.grid)
	sy := float32(index / a.grid)
	return UV{
		MinU: sx * step,
		MinV: sy * step,
		MaxU: (sx + 1) * step,
		MaxV: (sy + 1) * step,
	}
}

// subRect returns the sub-rectangle of uv at quadrant (qx, qy) on a
// 2^levels × 2^levels split.
func subRect(uv UV, qx, qy, levels uint32) UV {
	frac := 1 / float32(uint32(1)<<levels)
	w := (uv.MaxU - uv.MinU) * frac
	h := (uv.MaxV - uv.MinV) * frac
	minU := uv.MinU + float32(qx)*w
	minV := uv.MinV + float32(qy)*h
	return UV{MinU: minU, MinV: minV, MaxU: minU + w, MaxV: minV + h}
}

package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"tilestream/internal/tile"
)

// Job describes a prefetch run: which host to pull from and which tile
// regions to stream.
type Job struct {
	TileHost  string            `hcl:"tile_host"`
	UserAgent string            `hcl:"user_agent,optional"`
	Regions   []*RegionJobBlock `hcl:"region,block"`
}

// RegionJobBlock is one rectangular tile range at a fixed zoom level.
type RegionJobBlock struct {
	Name string `hcl:"name,label"`
	Zoom int    `hcl:"zoom"`
	MinX int    `hcl:"min_x"`
	MaxX int    `hcl:"max_x"`
	MinY int    `hcl:"min_y"`
	MaxY int    `hcl:"max_y"`
}

func newHCLEvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{},
		Functions: map[string]function.Function{},
	}
}

func LoadJob(path string) (*Job, error) {
	var job Job
	if err := hclsimple.DecodeFile(path, newHCLEvalContext(), &job); err != nil {
		return nil, err
	}
	if job.TileHost == "" {
		return nil, fmt.Errorf("job %s: tile_host must not be empty", path)
	}
	if len(job.Regions) == 0 {
		return nil, fmt.Errorf("job %s: at least one region block is required", path)
	}
	for _, r := range job.Regions {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("job %s: region %q: %w", path, r.Name, err)
		}
	}
	return &job, nil
}

func (r *RegionJobBlock) validate() error {
	if r.Zoom < 0 || r.Zoom > 31 {
		return fmt.Errorf("zoom %d out of range", r.Zoom)
	}
	if r.MinX > r.MaxX || r.MinY > r.MaxY {
		return fmt.Errorf("empty tile range")
	}
	max := 1 << r.Zoom
	if r.MinX < 0 || r.MinY < 0 || r.MaxX >= max || r.MaxY >= max {
		return fmt.Errorf("range exceeds zoom %d bounds", r.Zoom)
	}
	return nil
}

// Coordinates expands the region into concrete tile coordinates ordered
// center-out, so the tiles a viewer would look at first stream first. This
// stands in for the renderer's visibility ordering in headless runs.
func (r *RegionJobBlock) Coordinates() []tile.Coordinate {
	coords := make([]tile.Coordinate, 0, (r.MaxX-r.MinX+1)*(r.MaxY-r.MinY+1))
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			coords = append(coords, tile.Coordinate{Z: uint32(r.Zoom), X: uint32(x), Y: uint32(y)})
		}
	}

	cx := float64(r.MinX+r.MaxX) / 2
	cy := float64(r.MinY+r.MaxY) / 2
	dist := func(c tile.Coordinate) float64 {
		dx := float64(c.X) - cx
		dy := float64(c.Y) - cy
		return dx*dx + dy*dy
	}
	sort.SliceStable(coords, func(i, j int) bool {
		return dist(coords[i]) < dist(coords[j])
	})
	return coords
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"tilestream/internal/tile"
)

func writeJob(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "job.hcl")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write job: %v", err)
	}
	return p
}

func TestLoadJob(t *testing.T) {
	p := writeJob(t, `
tile_host  = "tiles.example.com"
user_agent = "tilestream-prefetch/1.0"

region "downtown" {
  zoom  = 4
  min_x = 2
  max_x = 5
  min_y = 3
  max_y = 4
}
`)
	job, err := LoadJob(p)
	if err != nil {
		t.Fatalf("LoadJob: %v", err)
	}
	if job.TileHost != "tiles.example.com" {
		t.Errorf("TileHost: got %q", job.TileHost)
	}
	if len(job.Regions) != 1 {
		t.Fatalf("regions: got %d, want 1", len(job.Regions))
	}
	r := job.Regions[0]
	if r.Name != "downtown" || r.Zoom != 4 {
		t.Errorf("region: got %+v", r)
	}
}

func TestLoadJob_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing host", `
tile_host = ""
region "r" {
  zoom  = 2
  min_x = 0
  max_x = 1
  min_y = 0
  max_y = 1
}
`},
		{"no regions", `tile_host = "tiles.example.com"` + "\n"},
		{"inverted range", `
tile_host = "tiles.example.com"
region "r" {
  zoom  = 2
  min_x = 3
  max_x = 1
  min_y = 0
  max_y = 1
}
`},
		{"out of zoom bounds", `
tile_host = "tiles.example.com"
region "r" {
  zoom  = 2
  min_x = 0
  max_x = 4
  min_y = 0
  max_y = 1
}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadJob(writeJob(t, tc.content)); err == nil {
				t.Fatal("LoadJob: expected error")
			}
		})
	}
}

func TestRegionCoordinates_CenterOut(t *testing.T) {
	r := &RegionJobBlock{Name: "r", Zoom: 3, MinX: 0, MaxX: 4, MinY: 0, MaxY: 4}

	coords := r.Coordinates()
	if len(coords) != 25 {
		t.Fatalf("count: got %d, want 25", len(coords))
	}
	// The exact center tile streams first.
	if want := (tile.Coordinate{Z: 3, X: 2, Y: 2}); coords[0] != want {
		t.Errorf("first coordinate: got %v, want %v", coords[0], want)
	}
	// Corners come last.
	last := coords[len(coords)-1]
	if (last.X != 0 && last.X != 4) || (last.Y != 0 && last.Y != 4) {
		t.Errorf("last coordinate not a corner: %v", last)
	}

	seen := make(map[tile.Coordinate]struct{}, len(coords))
	for _, c := range coords {
		if !c.Valid() {
			t.Errorf("invalid coordinate %v", c)
		}
		if _, dup := seen[c]; dup {
			t.Errorf("duplicate coordinate %v", c)
		}
		seen[c] = struct{}{}
	}
}

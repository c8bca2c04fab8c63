package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.TileHost == "" {
		t.Error("TileHost default: got empty")
	}
	if cfg.CacheMemoryTiles != 256 {
		t.Errorf("CacheMemoryTiles: got %d, want 256", cfg.CacheMemoryTiles)
	}
	if cfg.AtlasGrid != 8 {
		t.Errorf("AtlasGrid: got %d, want 8", cfg.AtlasGrid)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers: got %d, want 4", cfg.Workers)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout: got %v, want 10s", cfg.FetchTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate on defaults: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TILE_HOST", "tiles.example.net")
	t.Setenv("WORKERS", "9")
	t.Setenv("FETCH_TIMEOUT_MS", "2500")
	t.Setenv("BLIT_BUDGET", "not-a-number")

	cfg := Load()

	if cfg.TileHost != "tiles.example.net" {
		t.Errorf("TileHost: got %q", cfg.TileHost)
	}
	if cfg.Workers != 9 {
		t.Errorf("Workers: got %d, want 9", cfg.Workers)
	}
	if cfg.FetchTimeout != 2500*time.Millisecond {
		t.Errorf("FetchTimeout: got %v, want 2.5s", cfg.FetchTimeout)
	}
	// Unparseable values fall back to the default.
	if cfg.BlitBudget != 4 {
		t.Errorf("BlitBudget: got %d, want 4", cfg.BlitBudget)
	}
}

func TestValidate_RejectsBadKnobs(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty host", func(c *Config) { c.TileHost = "" }, "tile host"},
		{"zero memory tiles", func(c *Config) { c.CacheMemoryTiles = 0 }, "memory cache"},
		{"negative grid", func(c *Config) { c.AtlasGrid = -2 }, "atlas grid"},
		{"zero tile size", func(c *Config) { c.TileSize = 0 }, "tile size"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "worker count"},
		{"zero budget", func(c *Config) { c.BlitBudget = 0 }, "blit budget"},
		{"zero timeout", func(c *Config) { c.FetchTimeout = 0 }, "fetch timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Load()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate: expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

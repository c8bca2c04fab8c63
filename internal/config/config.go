package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config carries every engine knob. All values are fixed at construction;
// there is no hot reload.
type Config struct {
	TileHost         string
	CacheDir         string
	CacheMemoryTiles int
	AtlasGrid        int
	TileSize         int
	Workers          int
	BlitBudget       int
	FetchTimeout     time.Duration
	UserAgent        string
	LogLevel         string
	MetricsAddr      string
}

func Load() *Config {
	cacheDir := getEnv("CACHE_DIR", filepath.Join(os.TempDir(), "tilestream-cache"))

	return &Config{
		TileHost:         getEnv("TILE_HOST", "tile.openstreetmap.org"),
		CacheDir:         cacheDir,
		CacheMemoryTiles: getEnvInt("CACHE_MEMORY_TILES", 256),
		AtlasGrid:        getEnvInt("ATLAS_GRID", 8),
		TileSize:         getEnvInt("TILE_SIZE", 256),
		Workers:          getEnvInt("WORKERS", 4),
		BlitBudget:       getEnvInt("BLIT_BUDGET", 4),
		FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_MS", 10000)) * time.Millisecond,
		UserAgent:        getEnv("USER_AGENT", "tilestream/1.0"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		MetricsAddr:      getEnv("METRICS_ADDR", ""),
	}
}

// Validate fails fast on construction-time invariant violations instead of
// letting them surface mid-pipeline.
func (c *Config) Validate() error {
	if c.TileHost == "" {
		return fmt.Errorf("tile host must not be empty")
	}
	if c.CacheMemoryTiles <= 0 {
		return fmt.Errorf("memory cache capacity must be positive, got %d", c.CacheMemoryTiles)
	}
	if c.AtlasGrid <= 0 {
		return fmt.Errorf("atlas grid must be positive, got %d", c.AtlasGrid)
	}
	if c.TileSize <= 0 {
		return fmt.Errorf("tile size must be positive, got %d", c.TileSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.Workers)
	}
	if c.BlitBudget <= 0 {
		return fmt.Errorf("blit budget must be positive, got %d", c.BlitBudget)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %v", c.FetchTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

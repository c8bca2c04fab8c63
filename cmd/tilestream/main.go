package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"tilestream/internal/atlas"
	"tilestream/internal/cache"
	"tilestream/internal/config"
	"tilestream/internal/fetch"
	"tilestream/internal/logger"
	"tilestream/internal/metrics"
	"tilestream/internal/stream"
	"tilestream/internal/tile"
)

func main() {
	app := &cli.App{
		Name:        "tilestream",
		Description: "on-demand map tile streaming and caching engine",
		Commands: []*cli.Command{
			{
				Name:   "prefetch",
				Usage:  "stream the tile regions of a job file into the local cache",
				Action: commandPrefetch,
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  "job",
						Usage: "path to the prefetch job file",
						Value: "job.hcl",
					},
					&cli.DurationFlag{
						Name:  "deadline",
						Usage: "give up on tiles still missing after this long",
						Value: 5 * time.Minute,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandPrefetch(cliCtx *cli.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer zlog.Sync()

	job, err := config.LoadJob(cliCtx.Path("job"))
	if err != nil {
		return err
	}
	userAgent := cfg.UserAgent
	if job.UserAgent != "" {
		userAgent = job.UserAgent
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewSet(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, zlog)
	}

	tileCache, err := cache.New(cfg.CacheDir, cfg.CacheMemoryTiles, zlog)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	// Headless run: tiles land in the byte cache and a software atlas that
	// discards uploads.
	atl, err := atlas.New(cfg.AtlasGrid, cfg.TileSize, atlas.NoopUploader{}, zlog)
	if err != nil {
		return err
	}
	fetcher := fetch.New(job.TileHost, cfg.FetchTimeout, userAgent, zlog)

	streamer, err := stream.New(fetcher, tileCache, atl, m, cfg.Workers, cfg.BlitBudget, zlog)
	if err != nil {
		return err
	}
	defer streamer.Close()

	var coords []tile.Coordinate
	for _, region := range job.Regions {
		rc := region.Coordinates()
		zlog.Info("region queued",
			zap.String("region", region.Name),
			zap.Int("zoom", region.Zoom),
			zap.Int("tiles", len(rc)))
		coords = append(coords, rc...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cliCtx.Duration("deadline"))
	defer cancel()

	start := time.Now()
	streamer.Publish(coords)

	// Drive the engine the way a renderer would: drain a little every tick
	// and re-publish still-missing tiles once a second, which is also the
	// retry path for failed fetches.
	tick := time.NewTicker(16 * time.Millisecond)
	defer tick.Stop()
	republish := time.NewTicker(time.Second)
	defer republish.Stop()

	for {
		select {
		case <-ctx.Done():
			missing := missingTiles(cfg.CacheDir, coords)
			streamer.Drain()
			logSummary(zlog, tileCache, atl, len(coords), len(missing), time.Since(start))
			if len(missing) > 0 {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return fmt.Errorf("deadline reached with %d tiles missing", len(missing))
				}
				return fmt.Errorf("interrupted with %d tiles missing", len(missing))
			}
			return nil
		case <-tick.C:
			streamer.Drain()
			if streamer.Pending() == 0 && len(missingTiles(cfg.CacheDir, coords)) == 0 {
				logSummary(zlog, tileCache, atl, len(coords), 0, time.Since(start))
				return nil
			}
		case <-republish.C:
			missing := missingTiles(cfg.CacheDir, coords)
			if len(missing) > 0 {
				streamer.Publish(missing)
			}
		}
	}
}

// missingTiles returns the coords not yet persisted in the disk cache,
// preserving their original priority order. Prefetch is done when the disk
// tier holds everything; atlas residency is bounded by slot capacity and
// may legitimately be smaller than the job.
func missingTiles(cacheDir string, coords []tile.Coordinate) []tile.Coordinate {
	var missing []tile.Coordinate
	for _, c := range coords {
		if _, err := os.Stat(filepath.Join(cacheDir, c.CacheKey())); err != nil {
			missing = append(missing, c)
		}
	}
	return missing
}

func logSummary(zlog *zap.Logger, tileCache *cache.TileCache, atl *atlas.Atlas, total, missing int, elapsed time.Duration) {
	stats := tileCache.Stats()
	zlog.Info("prefetch finished",
		zap.Int("tiles", total),
		zap.Int("missing", missing),
		zap.Uint64("stored", stats.Stored),
		zap.Uint64("memory_hits", stats.MemoryHits),
		zap.Uint64("disk_hits", stats.DiskHits),
		zap.Int("atlas_resident", atl.Len()),
		zap.Uint64("atlas_evictions", atl.Evictions()),
		zap.Duration("elapsed", elapsed))
}

func serveMetrics(addr string, reg *prometheus.Registry, zlog *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	zlog.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		zlog.Warn("metrics server stopped", zap.Error(err))
	}
}

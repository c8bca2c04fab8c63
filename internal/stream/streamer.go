// Package stream coordinates the tile pipeline: it accepts prioritized
// desired-tile snapshots from the visibility layer, fans fetch work out to
// a worker pool, and drains completed tiles into the atlas under a
// per-tick budget so the render loop never stalls on I/O.
package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"tilestream/internal/atlas"
	"tilestream/internal/cache"
	"tilestream/internal/fetch"
	"tilestream/internal/imaging"
	"tilestream/internal/metrics"
	"tilestream/internal/tile"
)

type completion struct {
	coord  tile.Coordinate
	pixels *image.RGBA
}

// Streamer owns the worker pool and the completion queue. Publish may be
// called from any thread; Drain must only be called from the render
// thread, which is the sole path that touches the atlas.
type Streamer struct {
	fetcher *fetch.Fetcher
	cache   *cache.TileCache
	atlas   *atlas.Atlas
	metrics *metrics.Set
	log     *zap.Logger

	budget int

	version atomic.Uint64
	current atomic.Pointer[snapshot]

	// wake is closed and replaced on every publish so all idle workers
	// observe the broadcast; mu guards the swap.
	mu   sync.Mutex
	wake chan struct{}

	inflight sync.Map // tile.Coordinate -> struct{}

	qmu         sync.Mutex
	completions []completion

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a Streamer with the given worker count and per-tick blit
// budget. Both must be positive.
func New(fetcher *fetch.Fetcher, tileCache *cache.TileCache, atl *atlas.Atlas, m *metrics.Set, workers, blitBudget int, log *zap.Logger) (*Streamer, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if blitBudget <= 0 {
		return nil, fmt.Errorf("blit budget must be positive, got %d", blitBudget)
	}

	s := &Streamer{
		fetcher: fetcher,
		cache:   tileCache,
		atlas:   atl,
		metrics: m,
		log:     log,
		budget:  blitBudget,
		wake:    make(chan struct{}),
	}
	s.current.Store(newSnapshot(0, nil))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	log.Info("streamer started",
		zap.Int("workers", workers),
		zap.Int("blit_budget", blitBudget))
	return s, nil
}

// Publish replaces the desired-tile set wholesale. Coordinates must be in
// priority order, highest first. Work already in flight against the old
// snapshot is not cancelled; its results are still cached and blitted,
// which is harmless since the atlas can hold tiles beyond the current
// view.
func (s *Streamer) Publish(coords []tile.Coordinate) {
	v := s.version.Add(1)
	s.current.Store(newSnapshot(v, coords))

	s.mu.Lock()
	close(s.wake)
	s.wake = make(chan struct{})
	s.mu.Unlock()

	s.log.Debug("snapshot published",
		zap.Uint64("version", v),
		zap.Int("tiles", len(coords)))
}

// Drain moves at most the configured budget of completed tiles into the
// atlas and returns how many it moved. Call once per render tick, from
// the render thread only.
func (s *Streamer) Drain() int {
	s.qmu.Lock()
	n := len(s.completions)
	if n > s.budget {
		n = s.budget
	}
	batch := make([]completion, n)
	copy(batch, s.completions[:n])
	s.completions = s.completions[n:]
	s.qmu.Unlock()

	for _, c := range batch {
		s.atlas.Blit(c.coord, c.pixels)
		s.metrics.Blitted.Inc()
	}
	return n
}

// Pending returns the number of completions waiting to be drained.
func (s *Streamer) Pending() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.completions)
}

// Close stops the worker pool and waits for workers to exit. In-flight
// network calls run to completion or time out; there is no per-tile
// cancellation.
func (s *Streamer) Close() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("streamer stopped")
}

func (s *Streamer) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.log.With(zap.Int("worker", id))

	for {
		snap := s.current.Load()
		s.process(ctx, snap, log)
		if ctx.Err() != nil {
			return
		}

		// Capture the wake channel before the staleness check: a publish
		// in between closes the captured channel, so we cannot sleep
		// through it.
		s.mu.Lock()
		wake := s.wake
		s.mu.Unlock()
		if s.current.Load().version != snap.version {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-wake:
		}
	}
}

// process walks one snapshot in priority order. Membership is re-checked
// against the latest snapshot before each claim so a superseding publish
// takes effect mid-iteration.
func (s *Streamer) process(ctx context.Context, snap *snapshot, log *zap.Logger) {
	for _, coord := range snap.coords {
		if ctx.Err() != nil {
			return
		}
		if cur := s.current.Load(); cur.version != snap.version && !cur.contains(coord) {
			continue
		}
		if !s.claim(coord) {
			continue // another worker owns it
		}
		s.load(ctx, coord, log)
		s.release(coord)
	}
}

func (s *Streamer) claim(coord tile.Coordinate) bool {
	_, loaded := s.inflight.LoadOrStore(coord, struct{}{})
	if !loaded {
		s.metrics.InFlight.Inc()
	}
	return !loaded
}

func (s *Streamer) release(coord tile.Coordinate) {
	s.inflight.Delete(coord)
	s.metrics.InFlight.Dec()
}

// load produces decoded pixels for one claimed tile, from cache when
// possible and the network otherwise. Every failure is absorbed here: the
// tile just never reaches the completion queue, and re-publication of a
// snapshot that still wants it doubles as the retry policy.
func (s *Streamer) load(ctx context.Context, coord tile.Coordinate, log *zap.Logger) {
	if data, ok := s.cache.TryGet(coord); ok {
		s.metrics.CacheLookup.WithLabelValues("hit").Inc()
		s.enqueue(coord, data, log)
		return
	}
	s.metrics.CacheLookup.WithLabelValues("miss").Inc()

	data, err := s.fetcher.Fetch(ctx, coord)
	if err != nil {
		outcome := "transport"
		var ferr *fetch.Error
		if errors.As(err, &ferr) {
			outcome = ferr.Kind.String()
		}
		s.metrics.FetchTotal.WithLabelValues(outcome).Inc()
		return // already logged by the fetcher
	}
	s.metrics.FetchTotal.WithLabelValues("ok").Inc()

	if err := s.cache.Store(coord, data); err != nil {
		s.metrics.StoreFails.Inc()
		log.Warn("tile cache write failed", zap.Stringer("tile", coord), zap.Error(err))
		return
	}
	s.enqueue(coord, data, log)
}

func (s *Streamer) enqueue(coord tile.Coordinate, data []byte, log *zap.Logger) {
	pixels, err := imaging.Decode(data)
	if err != nil {
		s.metrics.DecodeFails.Inc()
		log.Debug("tile decode failed", zap.Stringer("tile", coord), zap.Error(err))
		return
	}

	s.qmu.Lock()
	s.completions = append(s.completions, completion{coord: coord, pixels: pixels})
	s.qmu.Unlock()
	s.metrics.Queued.Inc()
}

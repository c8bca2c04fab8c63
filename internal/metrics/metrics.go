// Package metrics defines the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set bundles the streaming engine's collectors. Create one per engine
// instance with NewSet; tests can hand in their own registry.
type Set struct {
	FetchTotal  *prometheus.CounterVec // outcome: ok|timeout|not_found|transport
	CacheLookup *prometheus.CounterVec // result: hit|miss
	DecodeFails prometheus.Counter
	StoreFails  prometheus.Counter
	Queued      prometheus.Counter
	Blitted     prometheus.Counter
	InFlight    prometheus.Gauge
}

func NewSet(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tilestream_fetch_total",
			Help: "Tile fetch attempts by outcome.",
		}, []string{"outcome"}),
		CacheLookup: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tilestream_cache_lookup_total",
			Help: "Byte cache lookups from the worker loop by result.",
		}, []string{"result"}),
		DecodeFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilestream_decode_failures_total",
			Help: "Tiles dropped because their bytes did not decode.",
		}),
		StoreFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilestream_store_failures_total",
			Help: "Tiles dropped because the disk cache write failed.",
		}),
		Queued: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilestream_completions_queued_total",
			Help: "Decoded tiles handed to the completion queue.",
		}),
		Blitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilestream_tiles_blitted_total",
			Help: "Completions drained into the atlas.",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tilestream_tiles_in_flight",
			Help: "Tiles currently claimed by a fetch worker.",
		}),
	}
}

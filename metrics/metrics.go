// Package metrics exposes the engine's frame and cache behavior as
// Prometheus gauges/counters: package-level promauto collectors updated
// by small wrapper calls at the relevant call sites, rather than a
// registry object threaded through every component.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const layerLabel = "layer" // "elevation" or "color"

var (
	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "crusta_frame_duration_seconds",
		Help: "Wall-clock time to advance one frame (refine + pin + request + render).",
	})

	cutSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crusta_cut_size",
		Help: "Number of nodes in the most recent frame's cut.",
	})

	activeSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crusta_active_set_size",
		Help: "Number of nodes visited by refinement in the most recent frame.",
	})

	fetchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crusta_fetch_queue_depth",
		Help: "Number of pending tile requests waiting on the fetcher.",
	})

	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crusta_cache_hits_total",
		Help: "Cache lookups that found an already-valid buffer.",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crusta_cache_misses_total",
		Help: "Cache lookups that found no valid buffer.",
	}, []string{"cache"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crusta_cache_evictions_total",
		Help: "Stream-buffer reassignments that displaced a previously cached tile.",
	}, []string{"cache"})

	cacheSaturations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crusta_cache_saturations_total",
		Help: "Requests for a stream buffer that found none available this frame.",
	}, []string{"cache"})

	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crusta_fetch_errors_total",
		Help: "Fetcher I/O failures, by data layer.",
	}, []string{layerLabel})

	rootLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "crusta_root_load_duration_seconds",
		Help: "Time to load all polyhedron patch roots at startup.",
	})
)

// FrameTimer starts timing a frame; call Observe when the frame's work
// (refine, pin, request, render, hooks) completes.
func FrameTimer() func() {
	start := time.Now()
	return func() { frameDuration.Observe(time.Since(start).Seconds()) }
}

// RecordFrame publishes the per-frame gauges the driver computes after
// each Advance.
func RecordFrame(cut, actives, pendingRequests int) {
	cutSize.Set(float64(cut))
	activeSetSize.Set(float64(actives))
	fetchQueueDepth.Set(float64(pendingRequests))
}

// CacheHit/CacheMiss/CacheEviction/CacheSaturation are called from
// tilecache call sites (main cache as "main", video cache as "video")
// to keep the hit-rate and saturation counters current.
func CacheHit(cache string)        { cacheHits.WithLabelValues(cache).Inc() }
func CacheMiss(cache string)       { cacheMisses.WithLabelValues(cache).Inc() }
func CacheEviction(cache string)   { cacheEvictions.WithLabelValues(cache).Inc() }
func CacheSaturation(cache string) { cacheSaturations.WithLabelValues(cache).Inc() }

// FetchError records an I/O failure for the given data layer.
func FetchError(layer string) { fetchErrors.WithLabelValues(layer).Inc() }

// RootLoadTimer starts timing DataManager.LoadRoots.
func RootLoadTimer() func() {
	start := time.Now()
	return func() { rootLoadDuration.Observe(time.Since(start).Seconds()) }
}

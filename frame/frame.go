// Package frame implements the engine's per-frame sequencing: advance
// the frame counter, refine every patch and collect the active set, pin
// actives, submit requests, render, then run any collaborator hooks
// (map overlays and similar external frame-driven modules).
//
// This ordering is load-bearing: pinning must precede any stream-buffer
// reuse a request submission could trigger, and request submission must
// precede render so a tile uploaded this frame has a chance to be
// drawn. Driver.Advance enforces the sequence; apart from the startup
// pin DataManager.LoadRoots puts on each root, nothing else in the engine
// calls Pin on the main cache or Fetcher.Request.
package frame

import (
	"sync/atomic"

	"github.com/crustaterra/crusta/crlog"
	"github.com/crustaterra/crusta/fetcher"
	"github.com/crustaterra/crusta/metrics"
	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/refine"
	"github.com/crustaterra/crusta/render"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tilecache"
	"github.com/crustaterra/crusta/tileindex"
)

// Hook is an external per-frame callback, e.g. the map-feature overlay
// module advancing its own animation state.
type Hook func(currentFrame int64)

// Driver sequences the engine's frames. Only the Driver writes
// CurrentFrame/VerticalScale; every other component treats them as
// read-only inputs.
type Driver struct {
	Cache    *tilecache.Cache[*node.Node]
	Fetcher  *fetcher.Fetcher
	Poly     *scope.Polyhedron
	Walker   *refine.Walker
	Renderer *render.Renderer
	Actives  *node.ActiveSet

	Hooks []Hook

	// currentFrame is written only by Advance; the fetcher goroutine
	// reads it through CurrentFrame to stamp stream-buffer victims, so
	// the counter itself is atomic even though everything else in Driver
	// is single-threaded.
	currentFrame         atomic.Int64
	verticalScale        float64
	lastScaleChangeFrame int64
}

// New builds a Driver at frame 0 with the given initial vertical scale.
func New(cache *tilecache.Cache[*node.Node], f *fetcher.Fetcher, poly *scope.Polyhedron, walker *refine.Walker, renderer *render.Renderer, verticalScale float64) *Driver {
	return &Driver{
		Cache:         cache,
		Fetcher:       f,
		Poly:          poly,
		Walker:        walker,
		Renderer:      renderer,
		Actives:       &node.ActiveSet{},
		verticalScale: verticalScale,
	}
}

// CurrentFrame returns the frame number most recently advanced to. Safe
// to call from the fetcher goroutine.
func (d *Driver) CurrentFrame() int64 { return d.currentFrame.Load() }

// SetVerticalScale updates the user's vertical exaggeration. The change
// takes effect at the next Advance: active nodes get their bounding
// spheres recomputed that frame.
func (d *Driver) SetVerticalScale(scale float64) {
	if scale == d.verticalScale {
		return
	}
	d.verticalScale = scale
	// Any node materialized up to and including the current frame carries
	// the old scale, so the rescale threshold is one past it: epoch <
	// currentFrame+1 means stale.
	d.lastScaleChangeFrame = d.currentFrame.Load() + 1
	d.Fetcher.SetVerticalScale(scale)
}

// Advance runs exactly one frame in the fixed order described in the
// package comment.
func (d *Driver) Advance() {
	defer metrics.FrameTimer()()

	currentFrame := d.currentFrame.Add(1)

	d.Actives.Reset()
	d.Walker.LastScaleChangeFrame = d.lastScaleChangeFrame
	var cut []refine.CutNode
	var requests []fetcher.CacheRequest

	for patch := 0; patch < d.Poly.NumPatches(); patch++ {
		res := d.Walker.Walk(tileindex.Root(uint8(patch)), currentFrame)
		cut = append(cut, res.Cut...)
		requests = append(requests, res.Requests...)
		d.Actives.AppendBatch(res.Actives)
	}

	actives := d.Actives.Nodes()
	for _, idx := range actives {
		buf, ok := d.Cache.FindCached(idx)
		if !ok {
			continue
		}
		d.Cache.Pin(buf, currentFrame)
		if n := buf.Payload; n.NeedsRescale(d.lastScaleChangeFrame) {
			n.Rescale(d.verticalScale, currentFrame)
		}
	}

	keep := make(map[tileindex.TileIndex]bool, len(requests))
	for _, r := range requests {
		keep[r.Target] = true
	}
	d.Fetcher.Purge(func(idx tileindex.TileIndex) bool { return keep[idx] })
	d.Fetcher.Request(requests)

	if d.Renderer != nil {
		d.Renderer.DrawCut(cut, currentFrame)
	}

	for _, h := range d.Hooks {
		h(currentFrame)
	}

	metrics.RecordFrame(len(cut), len(actives), len(requests))
	crlog.Debugf("frame %d: cut=%d actives=%d requests=%d", currentFrame, len(cut), len(actives), len(requests))
}

// Package fetcher implements the single background worker that drains a
// priority queue of tile requests into the main cache: pop the
// highest-priority request, read its tile from the owning QuadtreeFile,
// compute the node's cached fields, and flip its buffer to valid.
// Errors are logged and the request dropped, never retried
// automatically; the next refinement pass may re-request.
package fetcher

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/crustaterra/crusta/crerr"
	"github.com/crustaterra/crusta/crlog"
	"github.com/crustaterra/crusta/metrics"
	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/quadtreefile"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tileindex"
	"github.com/crustaterra/crusta/tilecache"
)

// Source is the pair of on-disk tile stores a Fetcher reads from. A
// DataManager implements this for the elevation/color QuadtreeFiles it
// owns; the Fetcher itself never opens a file.
type Source interface {
	ReadElevation(offset quadtreefile.TileOffset) (quadtreefile.Record, error)
	ReadColor(offset quadtreefile.TileOffset) (quadtreefile.Record, error)
}

// CacheRequest names one tile the refinement walker wants resident: the
// child's TileIndex and Scope (computed by the walker during descent,
// since the Fetcher does not itself navigate the quadtree), plus the
// on-disk offsets of its elevation and color records, copied from the
// parent node's cached child-offset arrays.
type CacheRequest struct {
	ID              uuid.UUID
	Priority        int64
	Target          tileindex.TileIndex
	TargetScope     scope.Scope
	ElevationOffset quadtreefile.TileOffset
	ColorOffset     quadtreefile.TileOffset

	seq int64
}

// NewRequest builds a CacheRequest with a fresh correlation id. The id
// only identifies the request value; Request de-duplicates by Target.
func NewRequest(priority int64, target tileindex.TileIndex, targetScope scope.Scope, elevOff, colorOff quadtreefile.TileOffset) CacheRequest {
	return CacheRequest{
		ID:              uuid.New(),
		Priority:        priority,
		Target:          target,
		TargetScope:     targetScope,
		ElevationOffset: elevOff,
		ColorOffset:     colorOff,
	}
}

func less(a, b *CacheRequest) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority // higher priority sorts first
	}
	return a.seq < b.seq
}

// Fetcher is the single background worker owned by one main-cache
// instance.
type Fetcher struct {
	cache  *tilecache.Cache[*node.Node]
	source Source

	mu      sync.Mutex
	cond    *sync.Cond
	queue   *btree.BTreeG[*CacheRequest]
	pending map[tileindex.TileIndex]*CacheRequest
	nextSeq int64

	verticalScaleBits atomic.Uint64

	// globalRange, if non-nil, overrides every freshly fetched tile's own
	// (min,max) pair with one dataset-wide range, mirroring
	// datamanager.Manager's root-load override.
	globalRange *[2]float32
}

// SetGlobalRange installs a dataset-wide elevation range override for
// every tile fetched from this point on. A nil argument restores each
// tile's own recorded (min,max).
func (f *Fetcher) SetGlobalRange(r *[2]float32) {
	f.globalRange = r
}

// New builds a Fetcher over cache, reading tiles from source.
func New(cache *tilecache.Cache[*node.Node], source Source) *Fetcher {
	f := &Fetcher{
		cache:   cache,
		source:  source,
		queue:   btree.NewG(32, less),
		pending: make(map[tileindex.TileIndex]*CacheRequest),
	}
	f.cond = sync.NewCond(&f.mu)
	f.SetVerticalScale(1.0)
	return f
}

// SetVerticalScale updates the global vertical exaggeration applied to
// newly materialized nodes. The frame driver is the only writer.
func (f *Fetcher) SetVerticalScale(scale float64) {
	f.verticalScaleBits.Store(math.Float64bits(scale))
}

func (f *Fetcher) verticalScale() float64 {
	return math.Float64frombits(f.verticalScaleBits.Load())
}

// Request hands a batch of prioritized requests to the fetcher.
// Duplicates targeting the same tile at a higher priority overwrite a
// pending lower-priority request for that same tile; a duplicate at a
// lower or equal priority is dropped.
func (f *Fetcher) Request(reqs []CacheRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range reqs {
		if existing, ok := f.pending[req.Target]; ok {
			if existing.Priority >= req.Priority {
				continue
			}
			f.queue.Delete(existing)
		}
		req.seq = f.nextSeq
		f.nextSeq++
		r := req
		f.pending[r.Target] = &r
		f.queue.ReplaceOrInsert(&r)
	}
	f.cond.Signal()
}

// Purge drops every pending request whose target does not satisfy keep.
// The frame driver calls it at each frame boundary: requests not
// re-issued by the new frame's refinement pass are abandoned.
func (f *Fetcher) Purge(keep func(tileindex.TileIndex) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for target, req := range f.pending {
		if !keep(target) {
			f.queue.Delete(req)
			delete(f.pending, target)
		}
	}
}

// Run drains the queue until ctx is canceled. It is meant to run in its
// own goroutine for the lifetime of the process.
func (f *Fetcher) Run(ctx context.Context, currentFrame func() int64) {
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	}()

	for {
		f.mu.Lock()
		for f.queue.Len() == 0 && ctx.Err() == nil {
			f.cond.Wait()
		}
		if ctx.Err() != nil {
			f.mu.Unlock()
			return
		}
		req, _ := f.queue.DeleteMin()
		delete(f.pending, req.Target)
		f.mu.Unlock()

		f.process(req, currentFrame())
	}
}

func (f *Fetcher) process(req *CacheRequest, currentFrame int64) {
	buf, existed, err := f.cache.GetBuffer(req.Target, currentFrame)
	if err != nil {
		if e, ok := err.(*crerr.Error); ok && e.Kind == crerr.KindCacheSaturated {
			crlog.Debugf("fetcher: cache saturated, dropping request for %s", req.Target)
			return
		}
		crlog.Errorf("fetcher: unexpected error reserving stream buffer for %s: %v", req.Target, err)
		return
	}
	if existed && buf.IsValid() {
		return
	}
	// existed-but-invalid means an earlier fetch of this tile failed
	// mid-stream; this fetch owns the buffer again and repopulates it.

	// A tile may exist in only one layer; read whichever offsets are
	// valid and leave the other layer empty.
	noChildren := [4]quadtreefile.TileOffset{
		quadtreefile.InvalidTileIndex, quadtreefile.InvalidTileIndex,
		quadtreefile.InvalidTileIndex, quadtreefile.InvalidTileIndex,
	}
	elevChildren, colorChildren := noChildren, noChildren
	var (
		elevMin, elevMax float32
		elevation        []float32
		color            []byte
	)
	if req.ElevationOffset != quadtreefile.InvalidTileIndex {
		rec, err := f.source.ReadElevation(req.ElevationOffset)
		if err != nil {
			metrics.FetchError(quadtreefile.Elevation.String())
			crlog.Debugf("fetcher: elevation read failed for %s: %v", req.Target, err)
			return
		}
		elevMin, elevMax = rec.Min, rec.Max
		elevation = rec.Elevation
		elevChildren = rec.Children
	}
	if req.ColorOffset != quadtreefile.InvalidTileIndex {
		rec, err := f.source.ReadColor(req.ColorOffset)
		if err != nil {
			metrics.FetchError(quadtreefile.Color.String())
			crlog.Debugf("fetcher: color read failed for %s: %v", req.Target, err)
			return
		}
		color = rec.Color
		colorChildren = rec.Children
	}
	if elevation == nil {
		// No height layer: the tile sits flat on the reference sphere.
		elevation = make([]float32, quadtreefile.Resolution*quadtreefile.Resolution)
	}

	if f.globalRange != nil {
		elevMin, elevMax = f.globalRange[0], f.globalRange[1]
	}

	n := &node.Node{
		Index:           req.Target,
		Scope:           req.TargetScope,
		DemTile:         req.ElevationOffset,
		ChildDemTiles:   elevChildren,
		ColorTile:       req.ColorOffset,
		ChildColorTiles: colorChildren,
	}
	n.SetSamples(elevMin, elevMax, elevation, color, f.verticalScale(), currentFrame)

	f.cache.Commit(buf, n)
	f.cache.Touch(buf, currentFrame)
}

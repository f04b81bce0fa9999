// Package refine implements the per-frame quadtree refinement walk: for
// each patch root, a recursive descent guided by a visibility oracle
// and a level-of-detail oracle decides which nodes form the current
// cut, which children to request from the fetcher, and which nodes
// belong to this frame's active set.
package refine

import (
	"github.com/crustaterra/crusta/fetcher"
	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/quadtreefile"
	"github.com/crustaterra/crusta/tilecache"
	"github.com/crustaterra/crusta/tileindex"
)

// VisibilityFunc is the conservative frustum test: it returns a scalar
// in [0,1] where 0 means the node's bounding sphere is fully outside
// the view frustum.
type VisibilityFunc func(n *node.Node) float64

// LODFunc returns a node's level-of-detail scalar; values greater than 1
// mean the node is too coarse for its screen footprint and should be
// subdivided.
type LODFunc func(n *node.Node) float64

// CutNode is one entry of the current cut: a node selected for
// rendering, together with the cache buffer backing it (so the renderer
// can touch/evict it through the same buffer the walker already looked
// up).
type CutNode struct {
	Node   *node.Node
	Buffer *tilecache.CacheBuffer[*node.Node]
}

// Result is everything one frame's refinement pass produces for a
// single patch: the renderable cut, the tile requests the fetcher
// should service next, and the set of nodes touched while deciding (the
// active set).
type Result struct {
	Cut      []CutNode
	Requests []fetcher.CacheRequest
	Actives  []tileindex.TileIndex
}

// Walker drives the descent for one or more patches against a shared
// main cache.
type Walker struct {
	Cache      *tilecache.Cache[*node.Node]
	Visibility VisibilityFunc
	LOD        LODFunc

	// LastScaleChangeFrame reports the frame at which vertical scale last
	// changed; a child whose bounding sphere predates it is treated as
	// not-yet-ready, same as a cache miss.
	LastScaleChangeFrame int64
}

// Walk descends from root, which must already be resident and valid in
// the cache (the DataManager guarantees this for patch roots at
// startup). CurrentFrame is the frame number to stamp touches with.
func (w *Walker) Walk(root tileindex.TileIndex, currentFrame int64) Result {
	var res Result

	buf, ok := w.Cache.FindCached(root)
	if !ok || !buf.IsValid() {
		return res
	}
	w.descend(buf, currentFrame, &res)
	return res
}

func (w *Walker) descend(buf *tilecache.CacheBuffer[*node.Node], currentFrame int64, res *Result) {
	w.Cache.Touch(buf, currentFrame)
	n := buf.Payload
	res.Actives = append(res.Actives, n.Index)

	// Step 1: cull.
	if w.Visibility(n) <= 0 {
		return
	}

	// Step 2: LOD.
	l := w.LOD(n)
	if l <= 1 {
		res.Cut = append(res.Cut, CutNode{Node: n, Buffer: buf})
		return
	}

	childScopes := n.Scope.Split(true)
	childBufs := [4]*tilecache.CacheBuffer[*node.Node]{}
	allReady := true
	for i := 0; i < 4; i++ {
		demOff, colorOff := n.ChildDemTiles[i], n.ChildColorTiles[i]
		if demOff == quadtreefile.InvalidTileIndex && colorOff == quadtreefile.InvalidTileIndex {
			// Dataset boundary: no tile at all for this child. Nothing to
			// request; this alone forces rendering n as-is.
			allReady = false
			continue
		}

		childIdx, err := n.Index.Child(uint8(i))
		if err != nil {
			allReady = false
			continue
		}

		cb, exists := w.Cache.FindCached(childIdx)
		if !exists || !cb.IsValid() || cb.Payload.NeedsRescale(w.LastScaleChangeFrame) {
			allReady = false
			res.Requests = append(res.Requests, fetcher.NewRequest(priority(l), childIdx, childScopes[i], demOff, colorOff))
			continue
		}
		childBufs[i] = cb
	}

	if !allReady {
		res.Cut = append(res.Cut, CutNode{Node: n, Buffer: buf})
		return
	}

	for i := 0; i < 4; i++ {
		w.descend(childBufs[i], currentFrame, res)
	}
}

// priority converts an LOD scalar into the fetcher's integer priority
// scale: coarser-than-needed-by-more sorts first, since that's the
// region of screen the viewer is most under-resolved in.
func priority(l float64) int64 {
	return int64(l * 1e6)
}

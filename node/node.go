// Package node holds the runtime tile state the refinement walker and
// renderer operate on: a bounding sphere, centroid, and elevation range
// computed once by the fetcher and reused every frame thereafter.
package node

import (
	"sync"

	"github.com/crustaterra/crusta/quadtreefile"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tileindex"
	"github.com/crustaterra/crusta/tilewire"
)

// Node is the payload type of the main-cache CacheBuffer[Node]: the
// per-tile state needed for LOD/visibility decisions and rendering.
// Nodes never hold pointers to neighboring nodes; all tree navigation
// goes back through TileIndex and the cache, so node ownership stays
// acyclic.
type Node struct {
	Index tileindex.TileIndex
	Scope scope.Scope

	BoundingCenter scope.Vertex
	BoundingRadius float64
	Centroid       scope.Vertex
	ElevationMin   float32
	ElevationMax   float32

	// Positions is the R×R geometry buffer, each sample stored as an
	// offset from Centroid to keep single-precision math
	// well-conditioned far from the origin. Elevation is the raw R×R
	// samples read from the DEM tile.
	// Both are nil until SetSamples populates them; loadRoot/fetcher
	// always call it before the node enters the cache as valid, so a cut
	// node can rely on them being present. The R×R×3 color samples are
	// kept zstd-packed (see tilewire) and reached through Color().
	Positions   []scope.Vertex
	Elevation   []float32
	colorPacked []byte
	colorSize   int

	// DEM/color tile offsets within their respective QuadtreeFiles, and
	// the same offsets for the four children — cached here so refinement
	// never has to re-read a parent record just to find a child.
	DemTile         quadtreefile.TileOffset
	ChildDemTiles   [4]quadtreefile.TileOffset
	ColorTile       quadtreefile.TileOffset
	ChildColorTiles [4]quadtreefile.TileOffset

	// VerticalScaleEpoch is the frame at which this node's bounding
	// sphere was last recomputed for the current vertical scale.
	VerticalScaleEpoch int64
}

// Init computes the cached geometric fields from the node's Scope and an
// elevation range alone: a bounding sphere around the (possibly
// exaggerated) quad patch, centered on the mean elevation shell, with
// Centroid on the unit sphere as SetSamples leaves it. It does not populate the
// per-sample geometry buffer — callers that have decoded tile records in
// hand should use SetSamples instead, which derives a tighter bounding
// sphere from the actual per-vertex elevations.
func (n *Node) Init(elevationMin, elevationMax float32, verticalScale float64, currentFrame int64) {
	n.ElevationMin, n.ElevationMax = elevationMin, elevationMax
	mean := (float64(elevationMin) + float64(elevationMax)) / 2 * verticalScale

	centroid := n.Scope.Centroid()
	n.Centroid = scope.ToSphere(centroid)
	n.BoundingCenter = n.Centroid.Scale(1 + mean)
	n.BoundingRadius = n.Scope.BoundingRadius(n.BoundingCenter)
	n.VerticalScaleEpoch = currentFrame
}

// SetSamples populates the R×R geometry/elevation/color buffers from a
// tile's decoded records and recomputes
// Centroid/BoundingCenter/BoundingRadius from the actual
// per-vertex elevations rather than Init's coarser min/max
// approximation. Positions are computed once, by bilinear interpolation
// of the Scope's four corners projected onto the unit sphere, and are
// never re-derived on a later Rescale: only the extrusion (which depends
// on vertical scale) changes, and that happens in the vertex shader from
// the separately-bound elevation texture, not by mutating this buffer.
func (n *Node) SetSamples(elevationMin, elevationMax float32, elevation []float32, color []byte, verticalScale float64, currentFrame int64) {
	n.ElevationMin, n.ElevationMax = elevationMin, elevationMax
	n.Elevation = elevation
	n.colorPacked = tilewire.Pack(color)
	n.colorSize = len(color)

	n.Centroid = scope.ToSphere(n.Scope.Centroid())
	n.Positions = gridPositions(n.Scope, n.Centroid)

	n.Rescale(verticalScale, currentFrame)
}

// Rescale recomputes BoundingCenter/BoundingRadius for the current
// vertical scale, without touching Centroid or Positions; it runs lazily
// when the user changes vertical exaggeration, not per frame. Safe
// to call even when Positions is nil (no tile records were ever
// attached, e.g. a node built only via Init): it falls back to the same
// corner-based approximation Init uses.
func (n *Node) Rescale(verticalScale float64, currentFrame int64) {
	mean := (float64(n.ElevationMin) + float64(n.ElevationMax)) / 2 * verticalScale
	n.BoundingCenter = n.Centroid.Scale(1 + mean)

	if len(n.Positions) == 0 {
		n.BoundingRadius = n.Scope.BoundingRadius(n.BoundingCenter)
		n.VerticalScaleEpoch = currentFrame
		return
	}

	radius := 0.0
	for i, off := range n.Positions {
		world := n.Centroid.Add(off)
		extruded := world.Scale(1 + float64(n.Elevation[i])*verticalScale)
		if d := extruded.Sub(n.BoundingCenter).Length(); d > radius {
			radius = d
		}
	}
	n.BoundingRadius = radius
	n.VerticalScaleEpoch = currentFrame
}

// Color decompresses and returns this node's R×R×3 color sample buffer.
// Returns nil, nil for a node SetSamples has not yet populated.
func (n *Node) Color() ([]byte, error) {
	if n.colorPacked == nil {
		return nil, nil
	}
	return tilewire.Unpack(n.colorPacked, n.colorSize)
}

// gridPositions bilinearly interpolates sc's four corners into an R×R
// grid on the unit sphere and returns each sample as an offset from
// origin.
func gridPositions(sc scope.Scope, origin scope.Vertex) []scope.Vertex {
	const r = quadtreefile.Resolution
	ll, lr := sc.Corners[scope.LowerLeft], sc.Corners[scope.LowerRight]
	ul, ur := sc.Corners[scope.UpperLeft], sc.Corners[scope.UpperRight]

	out := make([]scope.Vertex, r*r)
	for row := 0; row < r; row++ {
		v := float64(row) / float64(r-1)
		left := ll.Lerp(ul, v)
		right := lr.Lerp(ur, v)
		for col := 0; col < r; col++ {
			u := float64(col) / float64(r-1)
			p := scope.ToSphere(left.Lerp(right, u))
			out[row*r+col] = p.Sub(origin)
		}
	}
	return out
}

// NeedsRescale reports whether n's bounding sphere predates the most
// recent vertical-scale change and must be recomputed this frame.
func (n *Node) NeedsRescale(lastScaleChangeFrame int64) bool {
	return n.VerticalScaleEpoch < lastScaleChangeFrame
}

// ActiveSet is the per-frame list of nodes the refinement walker
// considered "current": the root plus everything descended into or
// touched for LOD decisions. Multiple patch walkers may append to it
// concurrently, each under one critical section.
type ActiveSet struct {
	mu    sync.Mutex
	nodes []tileindex.TileIndex
}

// Reset clears the set at the start of a frame.
func (a *ActiveSet) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = a.nodes[:0]
}

// AppendBatch adds one walker's local list of active nodes in a single
// critical section.
func (a *ActiveSet) AppendBatch(batch []tileindex.TileIndex) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = append(a.nodes, batch...)
}

// Nodes returns the accumulated active set for this frame.
func (a *ActiveSet) Nodes() []tileindex.TileIndex {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]tileindex.TileIndex, len(a.nodes))
	copy(out, a.nodes)
	return out
}

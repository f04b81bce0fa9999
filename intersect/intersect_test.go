package intersect

import (
	"math"
	"testing"

	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/quadtreefile"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tilecache"
	"github.com/crustaterra/crusta/tileindex"
)

// cubeScopes builds the six faces of a unit cube projected onto the unit
// sphere, a small easy-to-reason-about stand-in for the full
// triacontahedron (mirrors scope_test.go's octahedronScopes fixture).
func cubeScopes() []scope.Scope {
	c := func(x, y, z float64) scope.Vertex { return scope.ToSphere(scope.Vertex{X: x, Y: y, Z: z}) }
	return []scope.Scope{
		{Corners: [4]scope.Vertex{ // +Z
			scope.LowerLeft: c(-1, -1, 1), scope.LowerRight: c(1, -1, 1),
			scope.UpperLeft: c(-1, 1, 1), scope.UpperRight: c(1, 1, 1),
		}},
		{Corners: [4]scope.Vertex{ // -Z
			scope.LowerLeft: c(1, -1, -1), scope.LowerRight: c(-1, -1, -1),
			scope.UpperLeft: c(1, 1, -1), scope.UpperRight: c(-1, 1, -1),
		}},
		{Corners: [4]scope.Vertex{ // +X
			scope.LowerLeft: c(1, -1, 1), scope.LowerRight: c(1, -1, -1),
			scope.UpperLeft: c(1, 1, 1), scope.UpperRight: c(1, 1, -1),
		}},
		{Corners: [4]scope.Vertex{ // -X
			scope.LowerLeft: c(-1, -1, -1), scope.LowerRight: c(-1, -1, 1),
			scope.UpperLeft: c(-1, 1, -1), scope.UpperRight: c(-1, 1, 1),
		}},
		{Corners: [4]scope.Vertex{ // +Y
			scope.LowerLeft: c(-1, 1, 1), scope.LowerRight: c(1, 1, 1),
			scope.UpperLeft: c(-1, 1, -1), scope.UpperRight: c(1, 1, -1),
		}},
		{Corners: [4]scope.Vertex{ // -Y
			scope.LowerLeft: c(-1, -1, -1), scope.LowerRight: c(1, -1, -1),
			scope.UpperLeft: c(-1, -1, 1), scope.UpperRight: c(1, -1, 1),
		}},
	}
}

// testRadius is the unit-sphere radius every Node's geometry is defined
// relative to; elevation is a fraction of this radius, exactly as
// node.Init/SetSamples treat it ("1 + mean" extrusion).
const testRadius = 1.0

// flatLeaf builds a fully-populated, flat (uniform elevation) leaf node
// at idx with no on-disk children.
func flatLeaf(idx tileindex.TileIndex, sc scope.Scope, elevation float32) *node.Node {
	n := &node.Node{Index: idx, Scope: sc}
	for i := range n.ChildDemTiles {
		n.ChildDemTiles[i] = quadtreefile.InvalidTileIndex
		n.ChildColorTiles[i] = quadtreefile.InvalidTileIndex
	}
	const r = quadtreefile.Resolution
	elev := make([]float32, r*r)
	for i := range elev {
		elev[i] = elevation
	}
	color := make([]byte, r*r*3)
	n.SetSamples(elevation, elevation, elev, color, 1.0, 1)
	return n
}

func insertLeaf(t *testing.T, cache *tilecache.Cache[*node.Node], n *node.Node, frame int64) {
	t.Helper()
	buf, err := cache.GetStreamBuffer(frame)
	if err != nil {
		t.Fatalf("GetStreamBuffer: %v", err)
	}
	cache.Assign(buf, n.Index)
	cache.Commit(buf, n)
	cache.Touch(buf, frame)
	cache.Pin(buf, frame)
}

// TestIntersectHitsFlatPatchCentroid: a ray from the origin outward
// through a patch's centroid hits the surface at t ~= radius +
// elevation*verticalScale, within one grid cell of the analytic value.
func TestIntersectHitsFlatPatchCentroid(t *testing.T) {
	poly, err := scope.NewPolyhedron(cubeScopes())
	if err != nil {
		t.Fatalf("NewPolyhedron: %v", err)
	}

	cache := tilecache.New[*node.Node](8)
	const elevation = float32(0.05)
	leaf := flatLeaf(tileindex.Root(0), poly.RootScope(0), elevation)
	insertLeaf(t, cache, leaf, 1)

	w := &Walker{
		Poly:          poly,
		Cache:         cache,
		InnerRadius:   testRadius * 0.5,
		OuterRadius:   testRadius * 1.5,
		VerticalScale: 1.0,
		Epsilon:       1e-6,
		MaxSteps:      16,
	}

	// Aim slightly off the scope's exact center so the ray lands inside a
	// grid cell's interior rather than exactly on a shared vertex between
	// four triangles, avoiding a degenerate barycentric edge case.
	sc := poly.RootScope(0)
	ll, lr := sc.Corners[scope.LowerLeft], sc.Corners[scope.LowerRight]
	ul, ur := sc.Corners[scope.UpperLeft], sc.Corners[scope.UpperRight]
	const frac = 0.52
	left := ll.Lerp(ul, frac)
	right := lr.Lerp(ur, frac)
	targetDir := scope.ToSphere(left.Lerp(right, frac))
	ray := Ray{Origin: scope.Vertex{}, Dir: targetDir}

	hit, ok := w.Intersect(ray)
	if !ok {
		t.Fatalf("Intersect: no hit, want a hit near t=%v", testRadius+float64(elevation))
	}
	want := testRadius + float64(elevation)
	if math.Abs(hit.T-want) > testRadius/float64(quadtreefile.Resolution) {
		t.Errorf("hit.T = %v, want ~%v (within one grid cell)", hit.T, want)
	}
	if hit.Tile != tileindex.Root(0) {
		t.Errorf("hit.Tile = %v, want patch 0 root", hit.Tile)
	}
}

// TestIntersectMissBehindCamera ensures a ray pointed away from the
// dataset reports no hit rather than panicking or looping.
func TestIntersectMissBehindCamera(t *testing.T) {
	poly, err := scope.NewPolyhedron(cubeScopes())
	if err != nil {
		t.Fatalf("NewPolyhedron: %v", err)
	}
	cache := tilecache.New[*node.Node](8)
	insertLeaf(t, cache, flatLeaf(tileindex.Root(0), poly.RootScope(0), 0), 1)

	w := &Walker{
		Poly: poly, Cache: cache,
		InnerRadius: testRadius * 0.5, OuterRadius: testRadius * 1.5,
		VerticalScale: 1.0, Epsilon: 1e-6, MaxSteps: 16,
	}

	// Ray starting far outside the outer shell, pointed further away.
	ray := Ray{Origin: scope.Vertex{X: 0, Y: 0, Z: testRadius * 10}, Dir: scope.Vertex{X: 0, Y: 0, Z: 1}}
	if _, ok := w.Intersect(ray); ok {
		t.Errorf("Intersect: got a hit, want none for a ray pointed away from the dataset")
	}
}

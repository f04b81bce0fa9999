// Package intersect implements the ray/terrain intersector: given a ray
// in world space, find the closest positive hit against the currently
// resident cut, walking the same quadtree and cache the refinement
// walker already populated. The walk never mutates cache state and
// never requests loads; a cache miss simply means "treat the ancestor
// as the leaf", so a ray query has no scheduling side effects and is
// safe from any thread that tolerates slightly stale residency.
package intersect

import (
	"math"

	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/quadtreefile"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tilecache"
	"github.com/crustaterra/crusta/tileindex"
)

// Ray is a ray in world space; Dir need not be unit length but callers
// usually pass a normalized direction so T is a true distance.
type Ray struct {
	Origin, Dir scope.Vertex
}

// At evaluates the ray at parameter t.
func (r Ray) At(t float64) scope.Vertex {
	return r.Origin.Add(r.Dir.Scale(t))
}

// Hit is a positive intersection against the current cut.
type Hit struct {
	T     float64
	Point scope.Vertex
	Tile  tileindex.TileIndex
}

// Walker holds the read-only state an intersection query needs: the
// polyhedron (for patch location), the main cache (for reading whatever
// nodes refinement has already resolved), and the world shells bounding
// the dataset's elevation range.
type Walker struct {
	Poly  *scope.Polyhedron
	Cache *tilecache.Cache[*node.Node]

	InnerRadius float64 // world-space radius of the lowest possible elevation shell
	OuterRadius float64 // world-space radius of the highest possible elevation shell

	VerticalScale float64
	Epsilon       float64

	// MaxSteps bounds the number of times the walker re-resolves a leaf
	// and advances past it, guarding against a degenerate ray (nearly
	// tangent to a shell) looping indefinitely.
	MaxSteps int
}

// Intersect returns the closest positive hit against the current cut, or
// false if the ray never enters the dataset's elevation shells or
// passes through without striking any resident tile's surface.
func (w *Walker) Intersect(ray Ray) (Hit, bool) {
	tIn, tOut, ok := intersectShell(ray, w.OuterRadius)
	if !ok || tOut < 0 {
		return Hit{}, false
	}
	if tIn < 0 {
		tIn = 0
	}
	if innerNear, innerFar, ok := intersectShell(ray, w.InnerRadius); ok {
		// Entering the inner shell first means the ray is already inside
		// the terrain volume at tIn; clip to just before it so the first
		// leaf test sees genuine surface, not the inner shell itself.
		if innerNear > tIn {
			tOut = innerNear
		} else if innerFar > tIn {
			tIn = innerFar
		}
	}

	maxSteps := w.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 64
	}

	t := tIn
	for step := 0; step < maxSteps && t < tOut; step++ {
		point := ray.At(t)
		dir := scope.ToSphere(point)

		patch, ok := w.locatePatch(dir)
		if !ok {
			return Hit{}, false
		}

		leafIdx, leafBuf, ok := w.descendToLeaf(tileindex.Root(uint8(patch)), dir)
		if !ok {
			return Hit{}, false
		}
		leaf := leafBuf.Payload

		if hit, ok := w.intersectLeaf(ray, leaf, tIn, tOut); ok {
			hit.Tile = leafIdx
			return hit, true
		}

		// No surface hit inside this leaf's footprint: advance past its
		// bounding sphere and re-resolve from there. A point re-descent
		// at each step instead of per-side sibling transition tables;
		// the walk cannot loop since t strictly increases every
		// iteration.
		_, far, ok := intersectSphere(ray, leaf.BoundingCenter, leaf.BoundingRadius)
		if !ok || far <= t {
			return Hit{}, false
		}
		t = far + w.Epsilon
	}
	return Hit{}, false
}

// locatePatch finds the root patch whose Scope contains dir, a linear
// scan since the polyhedron face count is small.
func (w *Walker) locatePatch(dir scope.Vertex) (int, bool) {
	for i := 0; i < w.Poly.NumPatches(); i++ {
		if w.Poly.RootScope(uint8(i)).Contains(dir, w.Epsilon) {
			return i, true
		}
	}
	return 0, false
}

// descendToLeaf walks from root toward dir, stopping at the deepest
// cached, valid node that either has no on-disk child containing dir or
// whose child containing dir is not resident. Only that one child is
// checked: unlike refinement, which descends only when all four children
// are ready, it may stop at a node finer than the one the cut drew.
func (w *Walker) descendToLeaf(root tileindex.TileIndex, dir scope.Vertex) (tileindex.TileIndex, *tilecache.CacheBuffer[*node.Node], bool) {
	idx := root
	buf, ok := w.Cache.FindCached(idx)
	if !ok || !buf.IsValid() {
		return tileindex.TileIndex{}, nil, false
	}

	for depth := 0; depth < int(tileindex.MaxLevel); depth++ {
		n := buf.Payload
		childScopes := n.Scope.Split(true)

		childI := -1
		for i := 0; i < 4; i++ {
			if childScopes[i].Contains(dir, w.Epsilon) {
				childI = i
				break
			}
		}
		if childI < 0 {
			return idx, buf, true
		}

		demOff, colorOff := n.ChildDemTiles[childI], n.ChildColorTiles[childI]
		if demOff == quadtreefile.InvalidTileIndex && colorOff == quadtreefile.InvalidTileIndex {
			return idx, buf, true
		}

		childIdx, err := idx.Child(uint8(childI))
		if err != nil {
			return idx, buf, true
		}
		childBuf, ok := w.Cache.FindCached(childIdx)
		if !ok || !childBuf.IsValid() {
			return idx, buf, true
		}

		idx, buf = childIdx, childBuf
	}
	return idx, buf, true
}

// intersectLeaf walks leaf's (R-1)x(R-1) grid cell by cell, testing two
// triangles per cell, and returns the first (smallest-t, within [tMin,
// tMax]) hit.
func (w *Walker) intersectLeaf(ray Ray, leaf *node.Node, tMin, tMax float64) (Hit, bool) {
	if len(leaf.Positions) == 0 {
		return Hit{}, false
	}
	const r = quadtreefile.Resolution

	best := Hit{T: math.Inf(1)}
	found := false

	worldAt := func(i int) scope.Vertex {
		return leaf.Centroid.Add(leaf.Positions[i]).Scale(1 + float64(leaf.Elevation[i])*w.VerticalScale)
	}

	for row := 0; row < r-1; row++ {
		for col := 0; col < r-1; col++ {
			i00 := row*r + col
			i10 := row*r + col + 1
			i01 := (row+1)*r + col
			i11 := (row+1)*r + col + 1

			v00, v10, v01, v11 := worldAt(i00), worldAt(i10), worldAt(i01), worldAt(i11)

			for _, tri := range [2][3]scope.Vertex{{v00, v10, v11}, {v00, v11, v01}} {
				if t, ok := rayTriangle(ray, tri[0], tri[1], tri[2], w.Epsilon); ok && t >= tMin && t <= tMax {
					if !found || t < best.T {
						best = Hit{T: t, Point: ray.At(t)}
						found = true
					}
				}
			}
		}
	}
	return best, found
}

// rayTriangle is the Möller-Trumbore ray/triangle test, returning the
// ray parameter of the hit.
func rayTriangle(ray Ray, a, b, c scope.Vertex, epsilon float64) (float64, bool) {
	edge1 := b.Sub(a)
	edge2 := c.Sub(a)
	h := ray.Dir.Cross(edge2)
	det := edge1.Dot(h)
	if math.Abs(det) < epsilon {
		return 0, false
	}
	invDet := 1 / det
	s := ray.Origin.Sub(a)
	u := s.Dot(h) * invDet
	if u < -epsilon || u > 1+epsilon {
		return 0, false
	}
	q := s.Cross(edge1)
	v := ray.Dir.Dot(q) * invDet
	if v < -epsilon || u+v > 1+epsilon {
		return 0, false
	}
	t := edge2.Dot(q) * invDet
	if t <= epsilon {
		return 0, false
	}
	return t, true
}

// intersectShell intersects ray with a sphere of the given radius
// centered at the world origin.
func intersectShell(ray Ray, radius float64) (near, far float64, ok bool) {
	return intersectSphere(ray, scope.Vertex{}, radius)
}

// intersectSphere solves |O + tD - C|^2 = R^2 for t, returning the two
// real roots in increasing order.
func intersectSphere(ray Ray, center scope.Vertex, radius float64) (near, far float64, ok bool) {
	oc := ray.Origin.Sub(center)
	a := ray.Dir.Dot(ray.Dir)
	if a < 1e-18 {
		return 0, 0, false
	}
	b := 2 * oc.Dot(ray.Dir)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, 0, false
	}
	sq := math.Sqrt(disc)
	t0 := (-b - sq) / (2 * a)
	t1 := (-b + sq) / (2 * a)
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	return t0, t1, true
}

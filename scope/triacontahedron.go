package scope

import (
	"errors"
	"math"
)

// icosahedronVertices returns the 12 vertices of a regular icosahedron,
// normalized to the unit sphere. Coordinates are the standard
// golden-ratio construction (cyclic permutations of (0, ±1, ±φ)).
func icosahedronVertices() [12]Vertex {
	phi := (1 + math.Sqrt(5)) / 2
	raw := [12]Vertex{
		{-1, phi, 0}, {1, phi, 0}, {-1, -phi, 0}, {1, -phi, 0},
		{0, -1, phi}, {0, 1, phi}, {0, -1, -phi}, {0, 1, -phi},
		{phi, 0, -1}, {phi, 0, 1}, {-phi, 0, -1}, {-phi, 0, 1},
	}
	for i := range raw {
		raw[i] = raw[i].Normalize()
	}
	return raw
}

// icosahedronFaces lists the 20 triangular faces as vertex-index
// triples, wound consistently outward-facing.
var icosahedronFaces = [20][3]int{
	{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
	{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
	{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
	{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
}

// NewTriacontahedron builds the engine's default 30-face root
// polyhedron: a rhombic triacontahedron, constructed as the edge-dual of
// an icosahedron/dodecahedron pair. Each icosahedron edge (A,B), shared
// by two triangular faces f1 (which winds A->B) and f2 (which winds
// B->A), yields one rhombic root Scope with corners [A, dual(f2),
// dual(f1), B] in [LL, LR, UL, UR] order, where dual(f) is that face's
// centroid projected back onto the unit sphere. The perimeter
// A -> dual(f2) -> B -> dual(f1) then runs counter-clockwise seen from
// outside, the orientation Contains expects. This gives exactly 30
// quad patches (Euler's formula: 12 vertices - 30 edges + 20 faces = 2).
func NewTriacontahedron() (*Polyhedron, error) {
	verts := icosahedronVertices()

	duals := make([]Vertex, len(icosahedronFaces))
	for fi, f := range icosahedronFaces {
		duals[fi] = ToSphere(Centroid3(verts[f[0]], verts[f[1]], verts[f[2]]))
	}

	type occurrence struct {
		face int
		a, b int // directed edge as encountered in that face's winding
	}
	edges := make(map[edgeKey][]occurrence)
	for fi, f := range icosahedronFaces {
		tri := [3]int{f[0], f[1], f[2]}
		for i := 0; i < 3; i++ {
			a, b := tri[i], tri[(i+1)%3]
			key := makeEdgeKey(a, b)
			edges[key] = append(edges[key], occurrence{face: fi, a: a, b: b})
		}
	}

	scopes := make([]Scope, 0, 30)
	for _, occs := range edges {
		if len(occs) != 2 {
			return nil, errors.New("scope: icosahedron edge shared by != 2 faces")
		}
		e1, e2 := occs[0], occs[1]
		a, b := e1.a, e1.b // directed order from e1's own winding
		d1, d2 := duals[e1.face], duals[e2.face]
		scopes = append(scopes, Scope{Corners: [4]Vertex{
			LowerLeft:  verts[a],
			LowerRight: d2,
			UpperLeft:  d1,
			UpperRight: verts[b],
		}})
	}
	return NewPolyhedron(scopes)
}

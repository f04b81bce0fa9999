package scope

import "fmt"

// Polyhedron is the static table of root Scopes covering the sphere
// without gaps or overlaps, plus the 4-way adjacency between patches.
// The intersector does not consult the adjacency; it finds the patch on
// the far side of a seam by scanning every root Scope with Contains.
type Polyhedron struct {
	Scopes       []Scope
	connectivity [][4]Neighbor
}

// Neighbor names the patch and side reached by crossing one side of
// another patch.
type Neighbor struct {
	Patch uint8
	Side  Side
}

// NumPatches returns P, the number of root patches.
func (p *Polyhedron) NumPatches() int { return len(p.Scopes) }

// RootScope returns the root Scope of the given patch.
func (p *Polyhedron) RootScope(patch uint8) Scope { return p.Scopes[patch] }

// GetConnectivity returns, for each of patch's four sides, the neighbor
// patch and the side of that neighbor which abuts it.
func (p *Polyhedron) GetConnectivity(patch uint8) [4]Neighbor {
	return p.connectivity[patch]
}

// edgeKey is an undirected pair of vertex ids, used to find the two
// polyhedron faces sharing an edge.
type edgeKey struct{ a, b int }

func makeEdgeKey(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// buildConnectivity computes, for every patch and side, which other
// patch/side shares that boundary edge. It works for any polyhedron
// whose Scopes are built from a consistent set of shared corner
// vertices (by value), regardless of how those Scopes were derived.
func buildConnectivity(scopes []Scope) ([][4]Neighbor, error) {
	type occurrence struct {
		patch int
		side  Side
	}
	edges := make(map[edgeKey][]occurrence)
	index := make(map[Vertex]int)
	nextID := 0
	idOf := func(v Vertex) int {
		if id, ok := index[v]; ok {
			return id
		}
		id := nextID
		index[v] = id
		nextID++
		return id
	}

	for pi, sc := range scopes {
		for sd := Bottom; sd <= Left; sd++ {
			a, b := sc.Edge(sd)
			key := makeEdgeKey(idOf(a), idOf(b))
			edges[key] = append(edges[key], occurrence{patch: pi, side: sd})
		}
	}

	conn := make([][4]Neighbor, len(scopes))
	for key, occs := range edges {
		if len(occs) != 2 {
			return nil, fmt.Errorf("scope: edge %v shared by %d faces, want 2", key, len(occs))
		}
		conn[occs[0].patch][occs[0].side] = Neighbor{Patch: uint8(occs[1].patch), Side: occs[1].side}
		conn[occs[1].patch][occs[1].side] = Neighbor{Patch: uint8(occs[0].patch), Side: occs[0].side}
	}
	return conn, nil
}

// NewPolyhedron builds a Polyhedron from an explicit set of root Scopes,
// deriving connectivity by matching shared corner vertices. Used both by
// NewTriacontahedron and by tests that want a small synthetic
// polyhedron.
func NewPolyhedron(scopes []Scope) (*Polyhedron, error) {
	conn, err := buildConnectivity(scopes)
	if err != nil {
		return nil, err
	}
	return &Polyhedron{Scopes: scopes, connectivity: conn}, nil
}

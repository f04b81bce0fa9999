package refine

import (
	"testing"

	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/quadtreefile"
	"github.com/crustaterra/crusta/scope"
	"github.com/crustaterra/crusta/tilecache"
	"github.com/crustaterra/crusta/tileindex"
)

func sampleScope() scope.Scope {
	c := func(x, y, z float64) scope.Vertex { return scope.ToSphere(scope.Vertex{X: x, Y: y, Z: z}) }
	return scope.Scope{Corners: [4]scope.Vertex{
		scope.LowerLeft:  c(-1, -1, 1),
		scope.LowerRight: c(1, -1, 1),
		scope.UpperLeft:  c(-1, 1, 1),
		scope.UpperRight: c(1, 1, 1),
	}}
}

// insert puts a fully-valid node into cache at idx, with all four
// children present on disk (offsets 1,2,3,4; INVALID where childPresent
// says otherwise).
func insert(t *testing.T, cache *tilecache.Cache[*node.Node], idx tileindex.TileIndex, sc scope.Scope, childPresent [4]bool, frame int64) *tilecache.CacheBuffer[*node.Node] {
	t.Helper()
	n := &node.Node{Index: idx, Scope: sc}
	for i, present := range childPresent {
		if present {
			n.ChildDemTiles[i] = quadtreefile.TileOffset(i + 1)
			n.ChildColorTiles[i] = quadtreefile.TileOffset(i + 1)
		} else {
			n.ChildDemTiles[i] = quadtreefile.InvalidTileIndex
			n.ChildColorTiles[i] = quadtreefile.InvalidTileIndex
		}
	}
	n.Init(0, 10, 1.0, frame)

	buf, err := cache.GetStreamBuffer(frame)
	if err != nil {
		t.Fatalf("GetStreamBuffer: %v", err)
	}
	cache.Assign(buf, idx)
	cache.Commit(buf, n)
	cache.Touch(buf, frame)
	cache.Pin(buf, frame)
	return buf
}

// TestWalkSubdividesToChildren: root LOD = 2.0, all four children LOD =
// 0.5, all tiles present. The cut is exactly the four children and
// actives holds the root plus all four children (5 entries).
func TestWalkSubdividesToChildren(t *testing.T) {
	cache := tilecache.New[*node.Node](8)
	root := tileindex.Root(0)
	rootScope := sampleScope()
	insert(t, cache, root, rootScope, [4]bool{true, true, true, true}, 1)

	childScopes := rootScope.Split(true)
	for i := 0; i < 4; i++ {
		idx, err := root.Child(uint8(i))
		if err != nil {
			t.Fatalf("Child(%d): %v", i, err)
		}
		insert(t, cache, idx, childScopes[i], [4]bool{false, false, false, false}, 1)
	}

	lodByLevel := func(n *node.Node) float64 {
		if n.Index.Level == 0 {
			return 2.0
		}
		return 0.5
	}
	w := &Walker{
		Cache:      cache,
		Visibility: func(*node.Node) float64 { return 1 },
		LOD:        lodByLevel,
	}

	res := w.Walk(root, 2)
	if len(res.Cut) != 4 {
		t.Fatalf("len(Cut) = %d, want 4", len(res.Cut))
	}
	if len(res.Actives) != 5 {
		t.Fatalf("len(Actives) = %d, want 5", len(res.Actives))
	}
	if len(res.Requests) != 0 {
		t.Fatalf("len(Requests) = %d, want 0 (all children already cached)", len(res.Requests))
	}
	for _, cn := range res.Cut {
		if cn.Node.Index.Level != 1 {
			t.Errorf("cut node %s is not a level-1 child", cn.Node.Index)
		}
	}
}

// TestWalkRendersRootWhenChildMissingOnDisk: child index 2 has no tile
// on disk at all (both layers InvalidTileIndex); the cut stays at the
// root, no subdivision — a node never renders a mixture of
// own-resolution and child-resolution surface.
func TestWalkRendersRootWhenChildMissingOnDisk(t *testing.T) {
	cache := tilecache.New[*node.Node](8)
	root := tileindex.Root(0)
	rootScope := sampleScope()
	childPresent := [4]bool{true, true, false, true}
	insert(t, cache, root, rootScope, childPresent, 1)

	childScopes := rootScope.Split(true)
	for i, present := range childPresent {
		if !present {
			continue
		}
		idx, _ := root.Child(uint8(i))
		insert(t, cache, idx, childScopes[i], [4]bool{false, false, false, false}, 1)
	}

	w := &Walker{
		Cache:      cache,
		Visibility: func(*node.Node) float64 { return 1 },
		LOD:        func(n *node.Node) float64 { return 2.0 },
	}

	res := w.Walk(root, 2)
	if len(res.Cut) != 1 || res.Cut[0].Node.Index != root {
		t.Fatalf("Cut = %v, want exactly the root", res.Cut)
	}
	if len(res.Actives) != 1 {
		t.Fatalf("len(Actives) = %d, want 1 (only the root was visited)", len(res.Actives))
	}
}

// TestWalkCulledNodeNotRendered verifies a non-visible node is added to
// actives but neither rendered nor descended into.
func TestWalkCulledNodeNotRendered(t *testing.T) {
	cache := tilecache.New[*node.Node](4)
	root := tileindex.Root(0)
	insert(t, cache, root, sampleScope(), [4]bool{true, true, true, true}, 1)

	w := &Walker{
		Cache:      cache,
		Visibility: func(*node.Node) float64 { return 0 },
		LOD:        func(*node.Node) float64 { return 2.0 },
	}

	res := w.Walk(root, 2)
	if len(res.Cut) != 0 {
		t.Fatalf("len(Cut) = %d, want 0 for a culled root", len(res.Cut))
	}
	if len(res.Actives) != 1 {
		t.Fatalf("len(Actives) = %d, want 1", len(res.Actives))
	}
	if len(res.Requests) != 0 {
		t.Fatalf("len(Requests) = %d, want 0: a culled node must not request children", len(res.Requests))
	}
}

// TestWalkIdenticalInputsProduceIdenticalCut: refinement with an
// unchanged view and unchanged cache state yields an identical cut.
func TestWalkIdenticalInputsProduceIdenticalCut(t *testing.T) {
	cache := tilecache.New[*node.Node](8)
	root := tileindex.Root(0)
	insert(t, cache, root, sampleScope(), [4]bool{true, true, true, true}, 1)

	w := &Walker{
		Cache:      cache,
		Visibility: func(*node.Node) float64 { return 1 },
		LOD:        func(*node.Node) float64 { return 0.5 },
	}

	r1 := w.Walk(root, 2)
	r2 := w.Walk(root, 3)
	if len(r1.Cut) != len(r2.Cut) || len(r1.Cut) != 1 {
		t.Fatalf("cut sizes differ across identical frames: %d vs %d", len(r1.Cut), len(r2.Cut))
	}
	if r1.Cut[0].Node.Index != r2.Cut[0].Node.Index {
		t.Fatalf("cut node identity differs across identical frames")
	}
}

package node

import (
	"testing"

	"github.com/crustaterra/crusta/scope"
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

func TestInitSetsCachedFields(t *testing.T) {
	n := &Node{Index: tileindex.Root(0), Scope: sampleScope()}
	n.Init(10, 20, 1.0, 5)

	if n.ElevationMin != 10 || n.ElevationMax != 20 {
		t.Fatalf("elevation range = [%v,%v], want [10,20]", n.ElevationMin, n.ElevationMax)
	}
	if n.BoundingRadius <= 0 {
		t.Fatalf("BoundingRadius = %v, want > 0", n.BoundingRadius)
	}
	if n.VerticalScaleEpoch != 5 {
		t.Fatalf("VerticalScaleEpoch = %d, want 5", n.VerticalScaleEpoch)
	}
}

func TestNeedsRescale(t *testing.T) {
	n := &Node{Index: tileindex.Root(0), Scope: sampleScope()}
	n.Init(0, 100, 1.0, 3)

	if n.NeedsRescale(3) {
		t.Errorf("NeedsRescale(3) = true, want false (epoch == 3)")
	}
	if !n.NeedsRescale(4) {
		t.Errorf("NeedsRescale(4) = false, want true (epoch 3 < 4)")
	}
}

func TestSetSamplesColorRoundTrips(t *testing.T) {
	const r = 33
	n := &Node{Index: tileindex.Root(0), Scope: sampleScope()}
	elevation := make([]float32, r*r)
	color := make([]byte, r*r*3)
	for i := range color {
		color[i] = byte(i % 5)
	}

	n.SetSamples(0, 10, elevation, color, 1.0, 1)

	got, err := n.Color()
	if err != nil {
		t.Fatalf("Color: %v", err)
	}
	if len(got) != len(color) {
		t.Fatalf("Color() len = %d, want %d", len(got), len(color))
	}
	for i := range color {
		if got[i] != color[i] {
			t.Fatalf("Color()[%d] = %d, want %d", i, got[i], color[i])
		}
	}
}

func TestActiveSetAppendBatch(t *testing.T) {
	var a ActiveSet
	a.AppendBatch([]tileindex.TileIndex{tileindex.Root(0), tileindex.Root(1)})
	a.AppendBatch([]tileindex.TileIndex{tileindex.Root(2)})

	nodes := a.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("len(Nodes()) = %d, want 3", len(nodes))
	}

	a.Reset()
	if len(a.Nodes()) != 0 {
		t.Fatalf("expected empty active set after Reset")
	}
}

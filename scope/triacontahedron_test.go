package scope

import "testing"

func TestTriacontahedronShape(t *testing.T) {
	poly, err := NewTriacontahedron()
	if err != nil {
		t.Fatalf("NewTriacontahedron: %v", err)
	}
	if poly.NumPatches() != 30 {
		t.Fatalf("NumPatches() = %d, want 30", poly.NumPatches())
	}
}

func TestTriacontahedronConnectivityInvolutive(t *testing.T) {
	poly, err := NewTriacontahedron()
	if err != nil {
		t.Fatalf("NewTriacontahedron: %v", err)
	}
	for p := 0; p < poly.NumPatches(); p++ {
		conn := poly.GetConnectivity(uint8(p))
		for s, nb := range conn {
			back := poly.GetConnectivity(nb.Patch)
			roundTrip := back[nb.Side]
			if roundTrip.Patch != uint8(p) || roundTrip.Side != Side(s) {
				t.Errorf("patch %d side %d -> (%d,%d) does not round-trip, got (%d,%d)",
					p, s, nb.Patch, nb.Side, roundTrip.Patch, roundTrip.Side)
			}
		}
	}
}

func TestTriacontahedronCoversCentroids(t *testing.T) {
	poly, err := NewTriacontahedron()
	if err != nil {
		t.Fatalf("NewTriacontahedron: %v", err)
	}
	for p := 0; p < poly.NumPatches(); p++ {
		sc := poly.RootScope(uint8(p))
		center := ToSphere(sc.Centroid())
		if !sc.Contains(center, 1e-6) {
			t.Errorf("patch %d does not contain its own centroid", p)
		}
	}
}

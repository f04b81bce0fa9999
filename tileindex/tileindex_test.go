package tileindex

import "testing"

func TestRoundTrip(t *testing.T) {
	r := Root(3)
	for i := uint8(0); i < 4; i++ {
		child, err := r.Child(i)
		if err != nil {
			t.Fatalf("Child(%d): %v", i, err)
		}
		parent, err := child.Parent()
		if err != nil {
			t.Fatalf("Parent(): %v", err)
		}
		if parent != r {
			t.Errorf("child.Parent() = %v, want %v", parent, r)
		}
		if child.ChildIndex() != i {
			t.Errorf("ChildIndex() = %d, want %d", child.ChildIndex(), i)
		}
	}
}

func TestEquality(t *testing.T) {
	a, _ := Root(0).Child(2)
	b, _ := Root(0).Child(2)
	if a != b {
		t.Errorf("expected equal TileIndex values, got %v != %v", a, b)
	}
	m := map[TileIndex]int{a: 1}
	if m[b] != 1 {
		t.Errorf("TileIndex did not work as a map key")
	}
}

func TestDistinctChildrenDisjoint(t *testing.T) {
	r := Root(0)
	seen := make(map[TileIndex]bool)
	for i := uint8(0); i < 4; i++ {
		c, _ := r.Child(i)
		if seen[c] {
			t.Errorf("child %d collided with a previous child", i)
		}
		seen[c] = true
	}
}

func TestParentOfRootErrors(t *testing.T) {
	if _, err := Root(0).Parent(); err == nil {
		t.Errorf("expected error taking parent of root")
	}
}

func TestChildIndexOutOfRange(t *testing.T) {
	if _, err := Root(0).Child(4); err == nil {
		t.Errorf("expected error for child index 4")
	}
}

func TestDeepDescent(t *testing.T) {
	idx := Root(0)
	var err error
	for level := 0; level < 16; level++ {
		idx, err = idx.Child(uint8(level % 4))
		if err != nil {
			t.Fatalf("Child at level %d: %v", level, err)
		}
	}
	if idx.Level != 16 {
		t.Errorf("Level = %d, want 16", idx.Level)
	}
}

// Package tileindex implements the unique naming scheme for a node of any
// patch quadtree: a patch ordinal, a tree level, and a Morton-coded path
// locating the node within that level.
package tileindex

import "fmt"

// MaxLevel bounds how many descents a Path can encode (2 bits/level in a
// uint64): comfortably more than any realistic planetary LOD depth.
const MaxLevel = 31

// TileIndex names a node in any patch's quadtree. It is a plain comparable
// value: two TileIndex values are equal iff they name the same node, and it
// can be used directly as a map key.
type TileIndex struct {
	Patch uint8
	Level uint8
	Path  uint64
}

// Root returns the TileIndex of the root of the given patch's quadtree.
func Root(patch uint8) TileIndex {
	return TileIndex{Patch: patch}
}

// Child returns the TileIndex of child i (0..3) of t.
//
// Child index i must agree with scope.Scope.Split()'s quadrant order:
// 0=upper-left, 1=upper-right, 2=lower-left, 3=lower-right.
func (t TileIndex) Child(i uint8) (TileIndex, error) {
	if i > 3 {
		return TileIndex{}, fmt.Errorf("tileindex: child index %d out of range [0,3]", i)
	}
	if t.Level >= MaxLevel {
		return TileIndex{}, fmt.Errorf("tileindex: cannot descend past level %d", MaxLevel)
	}
	return TileIndex{
		Patch: t.Patch,
		Level: t.Level + 1,
		Path:  (t.Path << 2) | uint64(i&0x3),
	}, nil
}

// Parent returns the TileIndex of t's parent, stripping the two low Morton
// bits that named t within its parent's children.
func (t TileIndex) Parent() (TileIndex, error) {
	if t.Level == 0 {
		return TileIndex{}, fmt.Errorf("tileindex: root of patch %d has no parent", t.Patch)
	}
	return TileIndex{
		Patch: t.Patch,
		Level: t.Level - 1,
		Path:  t.Path >> 2,
	}, nil
}

// ChildIndex returns which of its parent's four children t is (0..3).
// Invalid for a root index.
func (t TileIndex) ChildIndex() uint8 {
	return uint8(t.Path & 0x3)
}

// IsRoot reports whether t names a patch root.
func (t TileIndex) IsRoot() bool {
	return t.Level == 0
}

func (t TileIndex) String() string {
	return fmt.Sprintf("patch%d/L%d/%#x", t.Patch, t.Level, t.Path)
}

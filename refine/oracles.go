package refine

import (
	"math"

	"github.com/crustaterra/crusta/node"
	"github.com/crustaterra/crusta/scope"
)

// Plane is a half-space boundary in the form normal·p + offset >= 0
// meaning "inside".
type Plane struct {
	Normal scope.Vertex
	Offset float64
}

// Frustum is the six-plane view volume a node's bounding sphere is
// tested against.
type Frustum struct {
	Planes [6]Plane
}

// Visibility implements VisibilityFunc: a conservative sphere/frustum
// test. A sphere further outside any single plane than its own radius is
// fully culled (0); otherwise it is treated as at least partially
// visible (1). The test is deliberately binary, not a soft falloff,
// matching the "0 means culled" contract literally — a continuous value
// would need per-plane penetration depth, which the cut-selection logic
// in Walk never consults beyond the zero/nonzero distinction.
func (f Frustum) Visibility(n *node.Node) float64 {
	for _, p := range f.Planes {
		if p.Normal.Dot(n.BoundingCenter)+p.Offset < -n.BoundingRadius {
			return 0
		}
	}
	return 1
}

// Camera is the viewing state the LOD oracle needs: eye position, a
// focus point the user is attending to, and the screen/projection
// parameters needed to turn a bounding radius into a pixel footprint.
type Camera struct {
	Position scope.Vertex
	Focus    scope.Vertex

	ScreenHeightPixels  float64
	VerticalFOVRadians  float64
	PixelErrorTolerance float64

	// FocusStrength scales how much more aggressively nodes near Focus
	// are subdivided relative to nodes the same distance from Position
	// but far from the focus point. Zero disables focus weighting
	// entirely (plain screen-space error LOD).
	FocusStrength float64
}

// FocusWeightedLOD builds a LODFunc that considers both screen coverage
// and the location of a point of focus: a node's projected screen size
// divided by the acceptable pixel error, scaled up the closer the node
// is to the user's focus point.
func FocusWeightedLOD(cam Camera) LODFunc {
	return func(n *node.Node) float64 {
		toNode := n.BoundingCenter.Sub(cam.Position)
		distCamera := toNode.Length()
		if distCamera < 1e-6 {
			distCamera = 1e-6
		}

		halfScreen := cam.ScreenHeightPixels / 2
		projected := n.BoundingRadius * halfScreen / (distCamera * math.Tan(cam.VerticalFOVRadians/2))

		distFocus := n.BoundingCenter.Sub(cam.Focus).Length()
		weight := 1 + cam.FocusStrength/(1+distFocus)

		return (projected / cam.PixelErrorTolerance) * weight
	}
}

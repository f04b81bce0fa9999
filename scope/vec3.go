package scope

import "math"

// Vertex is a position or direction in world space, stored as an offset
// from some reference origin so single-precision-adjacent math stays
// well-conditioned far from the planet center.
type Vertex struct {
	X, Y, Z float64
}

func (v Vertex) Add(o Vertex) Vertex { return Vertex{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vertex) Sub(o Vertex) Vertex { return Vertex{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vertex) Scale(s float64) Vertex {
	return Vertex{v.X * s, v.Y * s, v.Z * s}
}

func (v Vertex) Dot(o Vertex) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vertex) Cross(o Vertex) Vertex {
	return Vertex{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

func (v Vertex) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns v scaled to unit length, and the zero vector if v is
// (numerically) zero.
func (v Vertex) Normalize() Vertex {
	l := v.Length()
	if l < 1e-12 {
		return Vertex{}
	}
	return v.Scale(1 / l)
}

// Lerp linearly interpolates between v and o by t in [0,1].
func (v Vertex) Lerp(o Vertex, t float64) Vertex {
	return Vertex{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
		Z: v.Z + (o.Z-v.Z)*t,
	}
}

func Centroid3(a, b, c Vertex) Vertex {
	return Vertex{(a.X + b.X + c.X) / 3, (a.Y + b.Y + c.Y) / 3, (a.Z + b.Z + c.Z) / 3}
}

func Centroid4(a, b, c, d Vertex) Vertex {
	return Vertex{
		X: (a.X + b.X + c.X + d.X) / 4,
		Y: (a.Y + b.Y + c.Y + d.Y) / 4,
		Z: (a.Z + b.Z + c.Z + d.Z) / 4,
	}
}

// ToSphere projects v onto the unit sphere.
func ToSphere(v Vertex) Vertex {
	return v.Normalize()
}

package geom

import "math"

// NormalizeEpsilon is the length below which a vector is treated as zero.
const NormalizeEpsilon = 1e-4

// Vec2 is a position or direction in world pixels.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

func (v Vec2) Dot(o Vec2) float64 {
	return v.X*o.X + v.Y*o.Y
}

func (v Vec2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

func (v Vec2) LenSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Normalize returns the unit vector, or the zero vector when the input is
// shorter than NormalizeEpsilon.
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l < NormalizeEpsilon {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

func (v Vec2) Dist(o Vec2) float64 {
	return v.Sub(o).Len()
}

func (v Vec2) DistSq(o Vec2) float64 {
	return v.Sub(o).LenSq()
}

// Clamp limits each component to the given axis-aligned box.
func (v Vec2) Clamp(min, max Vec2) Vec2 {
	return Vec2{
		X: clampScalar(v.X, min.X, max.X),
		Y: clampScalar(v.Y, min.Y, max.Y),
	}
}

// Lerp interpolates linearly between v and o; t=0 yields v, t=1 yields o.
func (v Vec2) Lerp(o Vec2, t float64) Vec2 {
	return Vec2{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
	}
}

// IsFinite reports whether both components are finite numbers.
func (v Vec2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

func clampScalar(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

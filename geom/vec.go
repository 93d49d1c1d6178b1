// Package geom holds the small 2D math kit shared by the server simulation
// and the client predictor: vectors, angle interpolation, and the wrap
// helpers used by toroidal tracks.
package geom

import "math"

// Vec2 is a pair of finite floats. The physics step never produces NaN or
// Inf components; consumers that receive one anyway (a corrupted snapshot,
// say) should fall back to their last good value.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{v.X + o.X, v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{v.X - o.X, v.Y - o.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

func (v Vec2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Dot returns the scalar product.
func (v Vec2) Dot(o Vec2) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Dist returns the euclidean distance between two points.
func (v Vec2) Dist(o Vec2) float64 {
	return v.Sub(o).Len()
}

// ClampLen scales v down so its length does not exceed limit.
// Vectors already within the limit are returned unchanged.
func (v Vec2) ClampLen(limit float64) Vec2 {
	if limit <= 0 {
		return v
	}
	l := v.Len()
	if l <= limit || l == 0 {
		return v
	}
	return v.Scale(limit / l)
}

// IsFinite reports whether both components are ordinary floats.
func (v Vec2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// Lerp interpolates a toward b by t in [0,1].
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LerpVec interpolates each component of a toward b by t.
func LerpVec(a, b Vec2, t float64) Vec2 {
	return Vec2{Lerp(a.X, b.X, t), Lerp(a.Y, b.Y, t)}
}

// WrapAngle normalizes an angle to [-pi, pi). Keeps values bounded across
// many integration steps.
func WrapAngle(a float64) float64 {
	wrapped := math.Mod(a+math.Pi, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// AngleDiff returns the signed shortest rotation from a to b.
func AngleDiff(a, b float64) float64 {
	return WrapAngle(b - a)
}

// LerpAngle interpolates a toward b by t along the shortest arc, so a blend
// across the -pi/pi seam does not spin the long way around.
func LerpAngle(a, b, t float64) float64 {
	return a + AngleDiff(a, b)*t
}

// WrapCoord maps x into [0, size). Both negative positions and positions
// many multiples beyond the bound land back inside the world.
func WrapCoord(x, size float64) float64 {
	if size <= 0 {
		return x
	}
	wrapped := math.Mod(x, size)
	if wrapped < 0 {
		wrapped += size
	}
	return wrapped
}

// WrapPoint maps p into [0,w) x [0,h).
func WrapPoint(p Vec2, w, h float64) Vec2 {
	return Vec2{WrapCoord(p.X, w), WrapCoord(p.Y, h)}
}

// NearestWrapped returns the representative of target (mod w,h) that is
// closest to ref in unbounded space. The client predictor uses this to pull a
// server position into its own continuous frame: the integer wrap counts are
// the rounded signed distance divided by the world size.
func NearestWrapped(ref, target Vec2, w, h float64) Vec2 {
	out := target
	if w > 0 {
		out.X += math.Round((ref.X-target.X)/w) * w
	}
	if h > 0 {
		out.Y += math.Round((ref.Y-target.Y)/h) * h
	}
	return out
}

package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Vector helpers. Every normalisation in the engine goes through safeUnit so a
// zero-length input yields the zero vector instead of NaN.

// safeUnit returns v scaled to unit length, or the zero vector when |v| is zero.
func safeUnit(v r2.Vec) r2.Vec {
	n := r2.Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return r2.Vec{}
	}
	return r2.Scale(1/n, v)
}

// ClampMagnitude returns v unchanged if |v| <= m, otherwise v scaled to length m.
// It never divides by zero.
func ClampMagnitude(v r2.Vec, m float64) r2.Vec {
	n := r2.Norm(v)
	if n > m && n > 0 {
		return r2.Scale(m/n, v)
	}
	return v
}

// steer returns the classic Reynolds steering toward direction desired:
// unit(desired)*maxSpeed - vel, clamped to limit. A zero desired vector yields zero.
func steer(desired, vel r2.Vec, maxSpeed, limit float64) r2.Vec {
	dir := safeUnit(desired)
	if dir == (r2.Vec{}) {
		return r2.Vec{}
	}
	return ClampMagnitude(r2.Sub(r2.Scale(maxSpeed, dir), vel), limit)
}

// distanceSq returns the squared distance between two points.
func distanceSq(a, b r2.Vec) float64 {
	d := r2.Sub(a, b)
	return d.X*d.X + d.Y*d.Y
}

// clampInt clamps v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Wrap maps x into [0, w) for any finite x, including large negatives.
// w <= 0 returns x unchanged.
func Wrap(x, w float64) float64 {
	if w <= 0 {
		return x
	}
	x = math.Mod(math.Mod(x, w)+w, w)
	// math.Mod can round up to w for tiny negative inputs
	if x >= w {
		x = 0
	}
	return x
}

package systems

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Integrate advances one agent by dt using semi-implicit Euler. Velocity is
// clamped to MaxSpeed before it moves the position; under the wrap policy the
// result is folded back into [0, Width) x [0, Height). A non-positive dt
// leaves the agent untouched.
func Integrate(pos, vel, force r2.Vec, dt float64, p Params) (r2.Vec, r2.Vec) {
	if dt <= 0 {
		return pos, vel
	}

	vel = ClampMagnitude(r2.Add(vel, r2.Scale(dt, force)), p.MaxSpeed)
	pos = r2.Add(pos, r2.Scale(dt, vel))

	if p.Wrap {
		pos.X = Wrap(pos.X, p.Width)
		pos.Y = Wrap(pos.Y, p.Height)
	}
	return pos, vel
}

// IntegrateAll applies Integrate to every agent in place.
func IntegrateAll(pos, vel, force []r2.Vec, dt float64, p Params) {
	if dt <= 0 {
		return
	}
	for i := range pos {
		pos[i], vel[i] = Integrate(pos[i], vel[i], force[i], dt, p)
	}
}

package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/config"
)

// DefaultMargin is the boundary repulsion band used when the config leaves it at zero.
const DefaultMargin = 100.0

// Params is the flat hot-path copy of the simulation config read by the
// force and integration stages.
type Params struct {
	Width, Height    float64
	MaxSpeed         float64
	MaxForce         float64
	PerceptionRadius float64
	SeparationRadius float64

	WeightSeparation float64
	WeightAlignment  float64
	WeightCohesion   float64
	WeightBoundary   float64

	Wrap   bool    // toroidal policy; false selects margin repulsion
	Margin float64 // repulsion band width

	Nearest bool // gather neighbors with k-nearest instead of radius queries
	K       int  // k for nearest gathering
}

// ParamsFrom derives Params from a validated config.
func ParamsFrom(cfg *config.Config) Params {
	margin := cfg.Boundary.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	k := cfg.Spatial.KNearestCap
	if k == 0 {
		k = DefaultKNearestCap
	}
	return Params{
		Width:            cfg.World.Width,
		Height:           cfg.World.Height,
		MaxSpeed:         cfg.Flock.MaxSpeed,
		MaxForce:         cfg.Flock.MaxForce,
		PerceptionRadius: cfg.Flock.PerceptionRadius,
		SeparationRadius: cfg.Flock.SeparationRadius,
		WeightSeparation: cfg.Weights.Separation,
		WeightAlignment:  cfg.Weights.Alignment,
		WeightCohesion:   cfg.Weights.Cohesion,
		WeightBoundary:   cfg.Weights.Boundary,
		Wrap:             cfg.Derived.Wrap,
		Margin:           margin,
		Nearest:          cfg.Derived.UseNearest,
		K:                k,
	}
}

// Steering is the per-rule breakdown of one agent's steering force.
type Steering struct {
	Separation r2.Vec
	Alignment  r2.Vec
	Cohesion   r2.Vec
	Boundary   r2.Vec
	Total      r2.Vec
	Neighbors  int
}

// Scratch holds per-worker reusable query buffers.
type Scratch struct {
	Indices []int
	Nearest []Neighbor
}

// NewScratch allocates buffers sized for typical neighborhoods.
func NewScratch() *Scratch {
	return &Scratch{
		Indices: make([]int, 0, 64),
		Nearest: make([]Neighbor, 0, 64),
	}
}

// ComputeForce returns the steering force for agent self given the frozen
// position/velocity arrays and an index rebuilt from those positions.
// It only reads shared state, so it is safe to call concurrently with
// distinct scratch buffers.
func ComputeForce(self int, pos, vel []r2.Vec, index SpatialIndex, p Params, scratch *Scratch) Steering {
	var s Steering
	me := pos[self]
	v := vel[self]

	var sepSum, velSum, posSum r2.Vec
	sepCount := 0

	visit := func(j int, q r2.Vec, dSq float64) {
		if j == self {
			return
		}
		s.Neighbors++
		velSum = r2.Add(velSum, vel[j])
		posSum = r2.Add(posSum, q)

		// Separation: closer neighbors push harder
		if dSq > 0 && dSq < p.SeparationRadius*p.SeparationRadius {
			d := math.Sqrt(dSq)
			away := r2.Scale(1/d, r2.Sub(me, q))
			sepSum = r2.Add(sepSum, r2.Scale(1/d, away))
			sepCount++
		}
	}

	if index != nil && p.PerceptionRadius > 0 {
		if p.Nearest {
			// One extra slot since self is usually among the results.
			scratch.Nearest = index.QueryKNearest(scratch.Nearest[:0], me, p.K+1)
			rSq := p.PerceptionRadius * p.PerceptionRadius
			for _, n := range scratch.Nearest {
				if s.Neighbors == p.K {
					break
				}
				if n.DistSq <= rSq {
					visit(n.Index, n.Pos, n.DistSq)
				}
			}
		} else {
			scratch.Indices = index.QueryRadius(scratch.Indices[:0], me, p.PerceptionRadius)
			for _, j := range scratch.Indices {
				q := pos[j]
				visit(j, q, distanceSq(me, q))
			}
		}
	}

	if s.Neighbors > 0 {
		inv := 1 / float64(s.Neighbors)

		if sepCount > 0 {
			avg := r2.Scale(1/float64(sepCount), sepSum)
			s.Separation = steer(avg, v, p.MaxSpeed, p.MaxForce)
		}

		s.Alignment = steer(r2.Scale(inv, velSum), v, p.MaxSpeed, p.MaxForce)

		center := r2.Scale(inv, posSum)
		if center != me {
			s.Cohesion = steer(r2.Sub(center, me), v, p.MaxSpeed, p.MaxForce)
		}
	}

	if !p.Wrap {
		s.Boundary = boundaryForce(me, v, p)
	}

	total := r2.Scale(p.WeightSeparation, s.Separation)
	total = r2.Add(total, r2.Scale(p.WeightAlignment, s.Alignment))
	total = r2.Add(total, r2.Scale(p.WeightCohesion, s.Cohesion))
	total = r2.Add(total, r2.Scale(p.WeightBoundary, s.Boundary))
	s.Total = ClampMagnitude(total, p.MaxForce)

	return s
}

// boundaryForce pushes an agent back from any edge it is within Margin of.
// The push re-steers toward max speed away from the edge, clamped to twice the
// normal force cap and scaled by how deep the agent is inside the band.
func boundaryForce(me, v r2.Vec, p Params) r2.Vec {
	if p.Margin <= 0 {
		return r2.Vec{}
	}

	var push r2.Vec
	if me.X < p.Margin {
		push.X += p.Margin - me.X
	}
	if me.X > p.Width-p.Margin {
		push.X -= me.X - (p.Width - p.Margin)
	}
	if me.Y < p.Margin {
		push.Y += p.Margin - me.Y
	}
	if me.Y > p.Height-p.Margin {
		push.Y -= me.Y - (p.Height - p.Margin)
	}

	depth := r2.Norm(push)
	if depth == 0 {
		return r2.Vec{}
	}
	f := steer(push, v, p.MaxSpeed, 2*p.MaxForce)
	return r2.Scale(math.Min(1, depth/p.Margin), f)
}

// ComputeForces fills forces[i] for every index in indices. Each index is
// written exactly once, so disjoint index sets may run concurrently.
func ComputeForces(indices []int, pos, vel, forces []r2.Vec, index SpatialIndex, p Params, scratch *Scratch) {
	for _, i := range indices {
		forces[i] = ComputeForce(i, pos, vel, index, p, scratch).Total
	}
}

// ComputeAll runs the force stage sequentially over every agent.
func ComputeAll(pos, vel, forces []r2.Vec, index SpatialIndex, p Params, scratch *Scratch) {
	for i := range pos {
		forces[i] = ComputeForce(i, pos, vel, index, p, scratch).Total
	}
}

package systems

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/config"
)

const eps = 1e-9

func testParams() Params {
	return Params{
		Width:            1920,
		Height:           1080,
		MaxSpeed:         200,
		MaxForce:         300,
		PerceptionRadius: 50,
		SeparationRadius: 25,
		WeightSeparation: 1.5,
		WeightAlignment:  1,
		WeightCohesion:   1,
		WeightBoundary:   2,
		Wrap:             true,
		Margin:           100,
		K:                DefaultKNearestCap,
	}
}

func forcesFor(pos, vel []r2.Vec, p Params) []Steering {
	idx := NewSpatialGrid(p.Width, p.Height, p.PerceptionRadius)
	idx.Rebuild(pos)
	scratch := NewScratch()
	out := make([]Steering, len(pos))
	for i := range pos {
		out[i] = ComputeForce(i, pos, vel, idx, p, scratch)
	}
	return out
}

func isFinite(v r2.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

func TestNoNeighborsGivesZeroRules(t *testing.T) {
	p := testParams()
	pos := []r2.Vec{{X: 100, Y: 100}, {X: 400, Y: 400}}
	vel := []r2.Vec{{X: 10, Y: 0}, {X: 0, Y: 10}}

	for i, s := range forcesFor(pos, vel, p) {
		if s.Neighbors != 0 {
			t.Errorf("agent %d: %d neighbors, want 0", i, s.Neighbors)
		}
		if s.Separation != (r2.Vec{}) || s.Alignment != (r2.Vec{}) || s.Cohesion != (r2.Vec{}) {
			t.Errorf("agent %d: non-zero rule vectors %+v", i, s)
		}
		if s.Total != (r2.Vec{}) {
			t.Errorf("agent %d: total = %v under wrap policy, want zero", i, s.Total)
		}
	}
}

func TestSeparationPushesApart(t *testing.T) {
	p := testParams()
	pos := []r2.Vec{{X: 500, Y: 500}, {X: 505, Y: 500}}
	vel := []r2.Vec{{}, {}}

	s := forcesFor(pos, vel, p)
	a, b := s[0].Separation, s[1].Separation

	if a.X >= 0 || math.Abs(a.Y) > eps {
		t.Errorf("agent 0 separation = %v, want pointing -x", a)
	}
	if b.X <= 0 || math.Abs(b.Y) > eps {
		t.Errorf("agent 1 separation = %v, want pointing +x", b)
	}
	if math.Abs(r2.Norm(a)-r2.Norm(b)) > eps {
		t.Errorf("separation magnitudes differ: %v vs %v", r2.Norm(a), r2.Norm(b))
	}
	if math.Abs(a.X+b.X) > eps {
		t.Errorf("separation not opposite: %v vs %v", a, b)
	}
}

func TestCohesionSteersToCentroid(t *testing.T) {
	p := testParams()
	p.SeparationRadius = 5
	pos := []r2.Vec{{X: 500, Y: 500}, {X: 520, Y: 500}, {X: 510, Y: 520}}
	vel := []r2.Vec{{X: 10, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 0}}
	centroid := r2.Vec{X: 510, Y: 1520.0 / 3}

	for i, s := range forcesFor(pos, vel, p) {
		if s.Neighbors != 2 {
			t.Fatalf("agent %d: %d neighbors, want 2", i, s.Neighbors)
		}
		if s.Separation != (r2.Vec{}) {
			t.Errorf("agent %d: separation = %v, want zero", i, s.Separation)
		}

		// Cohesion is unit(centroid of others - pos)*maxSpeed - vel, so adding
		// the velocity back must point at the others' centroid, which lies on
		// the same side as the whole-group centroid.
		desired := r2.Add(s.Cohesion, vel[i])
		toCentroid := r2.Sub(centroid, pos[i])
		if r2.Dot(desired, toCentroid) <= 0 {
			t.Errorf("agent %d: cohesion %v does not head toward centroid", i, s.Cohesion)
		}

		// Shared velocity: alignment only tops the agent up to max speed along it
		if math.Abs(s.Alignment.Y) > eps || s.Alignment.X <= 0 {
			t.Errorf("agent %d: alignment = %v, want +x", i, s.Alignment)
		}
	}
}

func TestCoincidentAgentsStayFinite(t *testing.T) {
	p := testParams()
	pos := []r2.Vec{{X: 300, Y: 300}, {X: 300, Y: 300}, {X: 300, Y: 300}}
	vel := []r2.Vec{{}, {}, {}}

	for i, s := range forcesFor(pos, vel, p) {
		for _, v := range []r2.Vec{s.Separation, s.Alignment, s.Cohesion, s.Boundary, s.Total} {
			if !isFinite(v) {
				t.Fatalf("agent %d: non-finite steering %+v", i, s)
			}
		}
		if s.Separation != (r2.Vec{}) || s.Cohesion != (r2.Vec{}) {
			t.Errorf("agent %d: coincident neighbors should give zero separation and cohesion, got %+v", i, s)
		}
	}
}

func TestTotalForceBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pos := randomPositions(400, 400, 300, 8)
	vel := make([]r2.Vec, len(pos))
	for i := range vel {
		vel[i] = r2.Vec{X: rng.NormFloat64() * 100, Y: rng.NormFloat64() * 100}
	}

	for _, policy := range []struct {
		name string
		wrap bool
	}{{"wrap", true}, {"margin", false}} {
		t.Run(policy.name, func(t *testing.T) {
			p := testParams()
			p.Width, p.Height = 400, 300
			p.Wrap = policy.wrap
			p.WeightSeparation, p.WeightBoundary = 10, 10

			for i, s := range forcesFor(pos, vel, p) {
				if n := r2.Norm(s.Total); n > p.MaxForce+eps {
					t.Fatalf("agent %d: |total| = %v exceeds %v", i, n, p.MaxForce)
				}
				if n := r2.Norm(s.Boundary); n > 2*p.MaxForce+eps {
					t.Fatalf("agent %d: |boundary| = %v exceeds %v", i, n, 2*p.MaxForce)
				}
				if policy.wrap && s.Boundary != (r2.Vec{}) {
					t.Fatalf("agent %d: boundary = %v under wrap", i, s.Boundary)
				}
			}
		})
	}
}

func TestMarginBoundaryPushesInward(t *testing.T) {
	p := testParams()
	p.Wrap = false

	tests := []struct {
		name string
		pos  r2.Vec
		dir  r2.Vec
	}{
		{"left", r2.Vec{X: 10, Y: 540}, r2.Vec{X: 1}},
		{"right", r2.Vec{X: 1910, Y: 540}, r2.Vec{X: -1}},
		{"top", r2.Vec{X: 960, Y: 20}, r2.Vec{Y: 1}},
		{"bottom", r2.Vec{X: 960, Y: 1075}, r2.Vec{Y: -1}},
		{"outside", r2.Vec{X: -50, Y: 540}, r2.Vec{X: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := forcesFor([]r2.Vec{tt.pos}, []r2.Vec{{}}, p)[0]
			if r2.Dot(s.Boundary, tt.dir) <= 0 {
				t.Errorf("boundary = %v, want component along %v", s.Boundary, tt.dir)
			}
		})
	}

	t.Run("interior", func(t *testing.T) {
		s := forcesFor([]r2.Vec{{X: 960, Y: 540}}, []r2.Vec{{}}, p)[0]
		if s.Boundary != (r2.Vec{}) {
			t.Errorf("boundary = %v in the interior", s.Boundary)
		}
	})

	t.Run("deeper pushes harder", func(t *testing.T) {
		shallow := forcesFor([]r2.Vec{{X: 90, Y: 540}}, []r2.Vec{{}}, p)[0]
		deep := forcesFor([]r2.Vec{{X: 40, Y: 540}}, []r2.Vec{{}}, p)[0]
		if r2.Norm(deep.Boundary) <= r2.Norm(shallow.Boundary) {
			t.Errorf("deep %v not stronger than shallow %v", deep.Boundary, shallow.Boundary)
		}
	})
}

func TestNearestGatherMatchesRadius(t *testing.T) {
	pos := randomPositions(200, 300, 300, 9)
	vel := randomPositions(200, 50, 50, 10)

	radius := testParams()
	nearest := radius
	nearest.Nearest = true
	nearest.K = 200

	a := forcesFor(pos, vel, radius)
	b := forcesFor(pos, vel, nearest)
	for i := range a {
		if a[i].Neighbors != b[i].Neighbors {
			t.Fatalf("agent %d: %d vs %d neighbors", i, a[i].Neighbors, b[i].Neighbors)
		}
		if r2.Norm(r2.Sub(a[i].Total, b[i].Total)) > 1e-6 {
			t.Errorf("agent %d: totals differ %v vs %v", i, a[i].Total, b[i].Total)
		}
	}
}

func TestNearestGatherTakesK(t *testing.T) {
	// 20 agents packed well inside the perception radius.
	pos := make([]r2.Vec, 20)
	vel := make([]r2.Vec, 20)
	for i := range pos {
		pos[i] = r2.Vec{X: 500 + float64(i%5), Y: 500 + float64(i/5)}
	}

	for _, index := range []string{config.IndexGrid, config.IndexKDTree} {
		t.Run(index, func(t *testing.T) {
			cfg, err := config.Defaults()
			if err != nil {
				t.Fatal(err)
			}
			cfg.Spatial.Index = index
			cfg.Spatial.NeighborQuery = config.QueryNearest
			cfg.Spatial.KNearestCap = 5
			if err := cfg.Validate(); err != nil {
				t.Fatal(err)
			}
			p := ParamsFrom(cfg)
			idx := NewIndex(cfg)
			idx.Rebuild(pos)
			scratch := NewScratch()
			for i := range pos {
				if s := ComputeForce(i, pos, vel, idx, p, scratch); s.Neighbors != 5 {
					t.Fatalf("agent %d: %d neighbors, want 5", i, s.Neighbors)
				}
			}
		})
	}
}

func TestComputeForcesWritesOnlyOwnedSlots(t *testing.T) {
	p := testParams()
	pos := randomPositions(50, 200, 200, 11)
	vel := make([]r2.Vec, len(pos))
	idx := NewSpatialGrid(p.Width, p.Height, p.PerceptionRadius)
	idx.Rebuild(pos)

	sentinel := r2.Vec{X: 12345, Y: 12345}
	forces := make([]r2.Vec, len(pos))
	for i := range forces {
		forces[i] = sentinel
	}
	owned := []int{1, 3, 5}
	ComputeForces(owned, pos, vel, forces, idx, p, NewScratch())

	for i, f := range forces {
		isOwned := i == 1 || i == 3 || i == 5
		if isOwned && f == sentinel {
			t.Errorf("owned slot %d not written", i)
		}
		if !isOwned && f != sentinel {
			t.Errorf("slot %d written outside partition", i)
		}
	}
}

func BenchmarkComputeAll(b *testing.B) {
	p := testParams()
	pos := randomPositions(2000, p.Width, p.Height, 12)
	vel := randomPositions(2000, 100, 100, 13)
	forces := make([]r2.Vec, len(pos))
	idx := NewSpatialGrid(p.Width, p.Height, p.PerceptionRadius)
	scratch := NewScratch()

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		idx.Rebuild(pos)
		ComputeAll(pos, vel, forces, idx, p, scratch)
	}
}

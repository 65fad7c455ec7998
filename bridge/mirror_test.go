package bridge

import (
	"math"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/agents"
	"github.com/pthm-cable/flock/components"
)

func TestSyncCreatesAndUpdatesEntities(t *testing.T) {
	store := agents.New(8)
	ids := store.Spawn(3, func(i int) (r2.Vec, r2.Vec) {
		return r2.Vec{X: float64(i), Y: 1}, r2.Vec{X: 0, Y: 2}
	})

	m := NewMirror(ecs.NewWorld())
	m.Sync(store)

	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
	for _, id := range ids {
		h, ok := store.Handle(id)
		if !ok {
			t.Fatalf("no handle for %v", id)
		}
		if _, ok := h.(ecs.Entity); !ok {
			t.Fatalf("handle for %v is %T, want ecs.Entity", id, h)
		}
	}

	store.SetState(ids[1], r2.Vec{X: 50, Y: 60}, r2.Vec{X: -1, Y: 0})
	m.Sync(store)

	if m.Len() != 3 {
		t.Fatalf("Len after resync = %d, want 3", m.Len())
	}

	seen := 0
	m.Each(func(_ ecs.Entity, pos *components.Position, rot *components.Rotation, boid *components.Boid) {
		seen++
		if boid.Slot != ids[1].Slot {
			return
		}
		if pos.X != 50 || pos.Y != 60 {
			t.Errorf("position = %+v, want {50 60}", *pos)
		}
		if math.Abs(float64(rot.Heading)-math.Pi) > 1e-6 {
			t.Errorf("heading = %v, want pi", rot.Heading)
		}
	})
	if seen != 3 {
		t.Errorf("Each visited %d entities, want 3", seen)
	}
}

func TestReleaseRemovesEntity(t *testing.T) {
	store := agents.New(8)
	store.Spawn(4, func(i int) (r2.Vec, r2.Vec) {
		return r2.Vec{X: float64(i)}, r2.Vec{X: 1}
	})

	m := NewMirror(ecs.NewWorld())
	m.Sync(store)

	removed := store.Despawn(2, m.Release)
	if removed != 2 {
		t.Fatalf("Despawn removed %d, want 2", removed)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}

	// Releasing a handle twice or a foreign handle is ignored.
	m.Release(agents.ID{}, nil)
	m.Release(agents.ID{}, "not an entity")
	if m.Len() != 2 {
		t.Errorf("Len = %d after bogus releases, want 2", m.Len())
	}
}

func TestHeadingKeepsPreviousWhenStationary(t *testing.T) {
	tests := []struct {
		name string
		vel  components.Velocity
		prev float32
		want float64
	}{
		{"east", components.Velocity{X: 1}, 0, 0},
		{"north", components.Velocity{Y: 1}, 0, math.Pi / 2},
		{"stationary", components.Velocity{}, 1.25, 1.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := heading(tt.vel, tt.prev)
			if math.Abs(float64(got)-tt.want) > 1e-6 {
				t.Errorf("heading = %v, want %v", got, tt.want)
			}
		})
	}
}

// Package bridge mirrors simulated agents into an ark ECS world so a host can
// render or inspect them with its own systems.
package bridge

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/flock/agents"
	"github.com/pthm-cable/flock/components"
)

// Mirror keeps one entity per live agent. The entity is stored as the agent's
// handle, and released handles remove their entity.
type Mirror struct {
	world *ecs.World

	entityMapper *ecs.Map4[
		components.Position,
		components.Velocity,
		components.Rotation,
		components.Boid,
	]
	entityFilter *ecs.Filter4[
		components.Position,
		components.Velocity,
		components.Rotation,
		components.Boid,
	]

	count int
}

// NewMirror creates a mirror that populates world.
func NewMirror(world *ecs.World) *Mirror {
	return &Mirror{
		world: world,
		entityMapper: ecs.NewMap4[
			components.Position,
			components.Velocity,
			components.Rotation,
			components.Boid,
		](world),
		entityFilter: ecs.NewFilter4[
			components.Position,
			components.Velocity,
			components.Rotation,
			components.Boid,
		](world),
	}
}

// World returns the mirrored ECS world.
func (m *Mirror) World() *ecs.World { return m.world }

// Len returns the number of mirrored entities.
func (m *Mirror) Len() int { return m.count }

// Sync creates entities for new agents and copies the latest state of every
// agent onto its entity. Call it between steps.
func (m *Mirror) Sync(store *agents.Store) {
	store.Each(func(_ int, a agents.Agent) {
		pos := components.Position{X: float32(a.Pos.X), Y: float32(a.Pos.Y)}
		vel := components.Velocity{X: float32(a.Vel.X), Y: float32(a.Vel.Y)}

		e, ok := a.Handle.(ecs.Entity)
		if !ok || !m.world.Alive(e) {
			rot := components.Rotation{Heading: heading(vel, 0)}
			boid := components.Boid{Slot: a.ID.Slot, Gen: a.ID.Gen}
			e = m.entityMapper.NewEntity(&pos, &vel, &rot, &boid)
			store.SetHandle(a.ID, e)
			m.count++
			return
		}

		p, v, r, _ := m.entityMapper.Get(e)
		*p = pos
		*v = vel
		r.Heading = heading(vel, r.Heading)
	})
}

// Release removes the entity behind a despawned agent. Register it with
// Simulation.OnRelease.
func (m *Mirror) Release(_ agents.ID, h components.Handle) {
	e, ok := h.(ecs.Entity)
	if !ok || !m.world.Alive(e) {
		return
	}
	m.world.RemoveEntity(e)
	m.count--
}

// Each calls fn for every mirrored entity.
func (m *Mirror) Each(fn func(e ecs.Entity, pos *components.Position, rot *components.Rotation, boid *components.Boid)) {
	query := m.entityFilter.Query()
	for query.Next() {
		pos, _, rot, boid := query.Get()
		fn(query.Entity(), pos, rot, boid)
	}
}

// heading returns the direction of v, keeping prev when v is zero.
func heading(v components.Velocity, prev float32) float32 {
	if v.X == 0 && v.Y == 0 {
		return prev
	}
	return float32(math.Atan2(float64(v.Y), float64(v.X)))
}

// Package agents holds the dense per-agent state the flocking engine mutates each frame.
package agents

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/components"
)

// Default per-frame lifecycle caps.
const (
	DefaultSpawnBatch   = 50
	DefaultDespawnBatch = 50
)

// ID identifies an agent across frames. Slots are recycled; the generation
// distinguishes a live agent from a removed one that used the same slot.
type ID struct {
	Slot uint32
	Gen  uint32
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Slot, id.Gen)
}

// Agent is a copy of one agent's state.
type Agent struct {
	ID     ID
	Pos    r2.Vec
	Vel    r2.Vec
	Force  r2.Vec
	Handle components.Handle
}

// Generator produces the initial position and velocity of the i-th agent in a spawn batch.
type Generator func(i int) (pos, vel r2.Vec)

// ReleaseFunc is called with the handle of every agent removed from the store.
type ReleaseFunc func(id ID, h components.Handle)

type slot struct {
	dense int // index into the dense arrays, -1 when free
	gen   uint32
}

// Store keeps agent state as parallel dense arrays indexed 0..Len()-1.
// Removal swaps the last agent into the hole, so dense indices are only stable
// within a frame; IDs are stable for the agent's lifetime.
type Store struct {
	pos     []r2.Vec
	vel     []r2.Vec
	force   []r2.Vec
	handles []components.Handle
	owners  []uint32 // dense index -> slot

	slots []slot
	free  []uint32

	spawnCap   int
	despawnCap int
}

// New creates a store with room for capacity agents before reallocating.
func New(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		pos:        make([]r2.Vec, 0, capacity),
		vel:        make([]r2.Vec, 0, capacity),
		force:      make([]r2.Vec, 0, capacity),
		handles:    make([]components.Handle, 0, capacity),
		owners:     make([]uint32, 0, capacity),
		slots:      make([]slot, 0, capacity),
		spawnCap:   DefaultSpawnBatch,
		despawnCap: DefaultDespawnBatch,
	}
}

// SetBatchCaps sets the per-call spawn and despawn limits. Zero disables the operation.
func (s *Store) SetBatchCaps(spawn, despawn int) {
	s.spawnCap = max(spawn, 0)
	s.despawnCap = max(despawn, 0)
}

// BatchCaps returns the per-call spawn and despawn limits.
func (s *Store) BatchCaps() (spawn, despawn int) {
	return s.spawnCap, s.despawnCap
}

// Len returns the number of live agents.
func (s *Store) Len() int {
	return len(s.pos)
}

// Spawn appends up to n agents (truncated to the spawn cap) and returns their IDs.
func (s *Store) Spawn(n int, gen Generator) []ID {
	n = min(n, s.spawnCap)
	if n <= 0 {
		return nil
	}

	ids := make([]ID, 0, n)
	for i := 0; i < n; i++ {
		var p, v r2.Vec
		if gen != nil {
			p, v = gen(i)
		}
		ids = append(ids, s.add(p, v))
	}
	return ids
}

func (s *Store) add(p, v r2.Vec) ID {
	var sl uint32
	if k := len(s.free); k > 0 {
		sl = s.free[k-1]
		s.free = s.free[:k-1]
	} else {
		sl = uint32(len(s.slots))
		s.slots = append(s.slots, slot{dense: -1})
	}

	dense := len(s.pos)
	s.pos = append(s.pos, p)
	s.vel = append(s.vel, v)
	s.force = append(s.force, r2.Vec{})
	s.handles = append(s.handles, nil)
	s.owners = append(s.owners, sl)
	s.slots[sl].dense = dense

	return ID{Slot: sl, Gen: s.slots[sl].gen}
}

// Despawn removes up to n of the most recently spawned agents, truncated to the
// despawn cap. release, if non-nil, receives each removed agent's handle.
// Returns the number of agents removed.
func (s *Store) Despawn(n int, release ReleaseFunc) int {
	n = min(n, s.despawnCap, s.Len())
	for i := 0; i < n; i++ {
		last := s.Len() - 1
		s.removeDense(last, release)
	}
	return max(n, 0)
}

// Remove deletes a specific agent. Returns false for stale or unknown IDs.
func (s *Store) Remove(id ID, release ReleaseFunc) bool {
	i, ok := s.Lookup(id)
	if !ok {
		return false
	}
	s.removeDense(i, release)
	return true
}

// removeDense swaps the last agent into index i and shrinks the arrays.
func (s *Store) removeDense(i int, release ReleaseFunc) {
	sl := s.owners[i]
	id := ID{Slot: sl, Gen: s.slots[sl].gen}
	h := s.handles[i]

	last := len(s.pos) - 1
	if i != last {
		s.pos[i] = s.pos[last]
		s.vel[i] = s.vel[last]
		s.force[i] = s.force[last]
		s.handles[i] = s.handles[last]
		s.owners[i] = s.owners[last]
		s.slots[s.owners[i]].dense = i
	}
	s.handles[last] = nil
	s.pos = s.pos[:last]
	s.vel = s.vel[:last]
	s.force = s.force[:last]
	s.handles = s.handles[:last]
	s.owners = s.owners[:last]

	s.slots[sl].dense = -1
	s.slots[sl].gen++
	s.free = append(s.free, sl)

	if release != nil {
		release(id, h)
	}
}

// Lookup returns the dense index of a live agent.
func (s *Store) Lookup(id ID) (int, bool) {
	if int(id.Slot) >= len(s.slots) {
		return 0, false
	}
	sl := s.slots[id.Slot]
	if sl.dense < 0 || sl.gen != id.Gen {
		return 0, false
	}
	return sl.dense, true
}

// Alive reports whether id refers to a live agent.
func (s *Store) Alive(id ID) bool {
	_, ok := s.Lookup(id)
	return ok
}

// IDAt returns the ID of the agent at dense index i.
func (s *Store) IDAt(i int) ID {
	sl := s.owners[i]
	return ID{Slot: sl, Gen: s.slots[sl].gen}
}

// Get returns a copy of a live agent's state.
func (s *Store) Get(id ID) (Agent, bool) {
	i, ok := s.Lookup(id)
	if !ok {
		return Agent{}, false
	}
	return s.at(i), true
}

func (s *Store) at(i int) Agent {
	return Agent{
		ID:     s.IDAt(i),
		Pos:    s.pos[i],
		Vel:    s.vel[i],
		Force:  s.force[i],
		Handle: s.handles[i],
	}
}

// Each calls fn for every live agent in dense order.
func (s *Store) Each(fn func(i int, a Agent)) {
	for i := range s.pos {
		fn(i, s.at(i))
	}
}

// SetHandle attaches an opaque host handle to a live agent.
func (s *Store) SetHandle(id ID, h components.Handle) bool {
	i, ok := s.Lookup(id)
	if !ok {
		return false
	}
	s.handles[i] = h
	return true
}

// Handle returns the host handle attached to a live agent.
func (s *Store) Handle(id ID) (components.Handle, bool) {
	i, ok := s.Lookup(id)
	if !ok {
		return nil, false
	}
	return s.handles[i], true
}

// SetState overwrites a live agent's position and velocity.
func (s *Store) SetState(id ID, pos, vel r2.Vec) bool {
	i, ok := s.Lookup(id)
	if !ok {
		return false
	}
	s.pos[i] = pos
	s.vel[i] = vel
	return true
}

// Positions returns the dense position array. The slice aliases store memory
// and is invalidated by Spawn, Despawn and Remove.
func (s *Store) Positions() []r2.Vec { return s.pos }

// Velocities returns the dense velocity array.
func (s *Store) Velocities() []r2.Vec { return s.vel }

// Forces returns the dense accumulated-force array.
func (s *Store) Forces() []r2.Vec { return s.force }

// ResetForces zeroes the accumulated force of every agent.
func (s *Store) ResetForces() {
	clear(s.force)
}

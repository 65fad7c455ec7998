package game

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/agents"
	"github.com/pthm-cable/flock/components"
)

// SetTargetCount sets the population the lifecycle phase converges to.
// Each step moves the population toward it by at most one spawn or despawn batch.
func (s *Simulation) SetTargetCount(n int) {
	s.mu.Lock()
	s.target = max(n, 0)
	s.mu.Unlock()
}

// Target returns the current target population.
func (s *Simulation) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// spawnRequest places a fixed number of agents with its own generator,
// indexed from zero across however many batches it takes.
type spawnRequest struct {
	gen       agents.Generator
	next      int
	remaining int
}

// RequestSpawn asks for n more agents. A non-nil gen places exactly these n
// agents; anything spawned afterwards goes back to the default generator.
// Agents appear over the following steps in batches.
func (s *Simulation) RequestSpawn(n int, gen agents.Generator) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.target += n
	if gen != nil {
		s.queued = append(s.queued, spawnRequest{gen: gen, remaining: n})
	}
	s.mu.Unlock()
}

// RequestDespawn asks for n fewer agents. The most recently added agents go first.
func (s *Simulation) RequestDespawn(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.target = max(s.target-n, 0)
	s.mu.Unlock()
}

// OnRelease registers fn to be called with every despawned agent's handle.
func (s *Simulation) OnRelease(fn agents.ReleaseFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.releases = append(s.releases, fn)
	s.mu.Unlock()
}

// runLifecycle spawns or despawns one batch toward the target.
func (s *Simulation) runLifecycle() {
	s.mu.Lock()
	target := s.target
	s.requests = append(s.requests, s.queued...)
	s.queued = s.queued[:0]
	releases := s.releases
	s.mu.Unlock()

	n := s.store.Len()
	switch {
	case n < target:
		ids := s.store.Spawn(target-n, s.place)
		s.collector.RecordSpawn(len(ids))
	case n > target:
		removed := s.store.Despawn(n-target, func(id agents.ID, h components.Handle) {
			for _, fn := range releases {
				fn(id, h)
			}
		})
		s.collector.RecordDespawn(removed)
	}

	// Requests left over once the target is met were cancelled by a lower target.
	if s.store.Len() >= target {
		s.requests = s.requests[:0]
	}
}

// place is the generator handed to the store. Pending requests are served in
// order, then the default generator takes over.
func (s *Simulation) place(int) (r2.Vec, r2.Vec) {
	for len(s.requests) > 0 {
		r := &s.requests[0]
		if r.remaining > 0 {
			pos, vel := r.gen(r.next)
			r.next++
			r.remaining--
			return pos, vel
		}
		s.requests = s.requests[1:]
	}
	pos, vel := s.gen(s.placed)
	s.placed++
	return pos, vel
}

// bootstrap places the initial population in one go, ignoring the batch caps.
func (s *Simulation) bootstrap(n int) {
	if n > 0 {
		s.store.SetBatchCaps(n, 0)
		ids := s.store.Spawn(n, s.place)
		s.collector.RecordSpawn(len(ids))
	}
	s.requests = s.requests[:0]
	s.store.SetBatchCaps(s.cfg.Lifecycle.SpawnBatch, s.cfg.Lifecycle.DespawnBatch)
}

package game

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/systems"
	"github.com/pthm-cable/flock/telemetry"
)

// Step advances the flock by dt seconds.
//
// Phases run in a fixed order: lifecycle, indexing, partitioning, force,
// integration. Force computation only reads positions and velocities, so every
// agent sees the same frame; integration only starts once all force tasks are
// done.
func (s *Simulation) Step(dt float64) {
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseLifecycle)
	s.applyPendingConfig()
	s.runLifecycle()

	n := s.store.Len()
	s.partitions = s.partitions[:0]
	if n > 0 {
		pos, vel, forces := s.store.Positions(), s.store.Velocities(), s.store.Forces()

		s.perf.StartPhase(telemetry.PhaseIndexing)
		s.index.Rebuild(pos)

		s.perf.StartPhase(telemetry.PhasePartitioning)
		s.partitions = systems.Partition(s.partitions, pos,
			r2.Vec{X: s.cfg.World.Width, Y: s.cfg.World.Height},
			s.pool.size,
			systems.PartitionOptions{Threshold: s.cfg.Parallel.Threshold, Cap: s.cfg.Parallel.MaxWorkers},
		)

		s.perf.StartPhase(telemetry.PhaseForce)
		if len(s.partitions) == 1 {
			systems.ComputeForces(s.partitions[0].Indices, pos, vel, forces, s.index, s.params, s.scratch)
		} else {
			s.pool.run(forceFrame{
				parts:  s.partitions,
				pos:    pos,
				vel:    vel,
				forces: forces,
				index:  s.index,
				params: s.params,
			})
		}

		s.perf.StartPhase(telemetry.PhaseIntegration)
		systems.IntegrateAll(pos, vel, forces, dt, s.params)
	}
	s.numPartitions = len(s.partitions)

	s.perf.EndTick()
	s.tick++

	b := s.perf.Last()
	s.metrics.Observe(b, n, s.numPartitions)
	if err := s.outputManager.WriteFrame(telemetry.FrameRecord{
		Tick:       s.tick,
		Agents:     n,
		Partitions: s.numPartitions,
		Breakdown:  b,
	}); err != nil {
		s.logger.Error("failed to write frame", "error", err)
	}

	s.flushTelemetry()
}

// Run steps the simulation ticks times with the configured fixed dt.
func (s *Simulation) Run(ticks int) {
	for i := 0; i < ticks; i++ {
		s.Step(s.cfg.Physics.DT)
	}
}

// applyPendingConfig swaps in a config queued by SetConfig.
func (s *Simulation) applyPendingConfig() {
	s.mu.Lock()
	cfg := s.pendingCfg
	s.pendingCfg = nil
	s.mu.Unlock()
	if cfg == nil {
		return
	}

	old := s.cfg
	s.cfg = cfg
	s.params = systems.ParamsFrom(cfg)
	s.index = systems.NewIndex(cfg)
	s.store.SetBatchCaps(cfg.Lifecycle.SpawnBatch, cfg.Lifecycle.DespawnBatch)

	if cfg.Lifecycle.Target != old.Lifecycle.Target {
		s.mu.Lock()
		s.target = cfg.Lifecycle.Target
		s.mu.Unlock()
	}

	if size := s.workerCount(); size != s.pool.size {
		s.pool.stop()
		s.pool = newWorkerPool(size)
	}

	for _, w := range cfg.Derived.Warnings {
		s.logger.Warn("config adjusted", "detail", w)
	}
	s.logger.Info("config applied",
		"tick", s.tick,
		"index", cfg.Spatial.Index,
		"boundary", cfg.Boundary.Policy,
		"workers", s.pool.size,
	)
}

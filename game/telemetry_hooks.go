package game

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/agents"
	"github.com/pthm-cable/flock/telemetry"
)

// flushTelemetry writes flock stats and perf summaries when their intervals elapse.
func (s *Simulation) flushTelemetry() {
	if s.collector.ShouldFlush(s.tick) {
		stats := s.collector.Flush(s.tick, s.store.Velocities(), s.neighborCounts())

		if s.statsCallback != nil {
			s.statsCallback(stats)
		}

		if s.logStats {
			s.logFlockStats(stats)
		}
		if err := s.outputManager.WriteFlock(stats); err != nil {
			s.logger.Error("failed to write flock stats", "error", err)
		}
	}

	interval := s.cfg.Telemetry.LogInterval
	if interval <= 0 || s.tick%int32(interval) != 0 {
		return
	}
	perfStats := s.perf.Stats()
	if s.logStats {
		s.logPerfStats(perfStats)
	}
	if err := s.outputManager.WritePerf(perfStats, s.tick, s.store.Len()); err != nil {
		s.logger.Error("failed to write perf", "error", err)
	}
}

// neighborCounts returns how many agents lie within the perception radius of
// each agent, excluding itself. The index is rebuilt first because integration
// has moved everyone since the frame's indexing phase.
func (s *Simulation) neighborCounts() []int {
	pos := s.store.Positions()
	s.neighbors = s.neighbors[:0]
	if len(pos) == 0 {
		return s.neighbors
	}

	s.index.Rebuild(pos)
	buf := s.scratch.Indices[:0]
	for i := range pos {
		buf = s.index.QueryRadius(buf[:0], pos[i], s.params.PerceptionRadius)
		count := 0
		for _, j := range buf {
			if j != i {
				count++
			}
		}
		s.neighbors = append(s.neighbors, count)
	}
	s.scratch.Indices = buf
	return s.neighbors
}

// CreateSnapshot captures the current flock state.
func (s *Simulation) CreateSnapshot() *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version:     telemetry.SnapshotVersion,
		Seed:        s.rngSeed,
		WorldWidth:  s.cfg.World.Width,
		WorldHeight: s.cfg.World.Height,
		Tick:        s.tick,
		Agents:      make([]telemetry.AgentState, 0, s.store.Len()),
	}
	s.store.Each(func(_ int, a agents.Agent) {
		snap.Agents = append(snap.Agents, telemetry.AgentState{
			Slot: a.ID.Slot,
			Gen:  a.ID.Gen,
			X:    a.Pos.X,
			Y:    a.Pos.Y,
			VelX: a.Vel.X,
			VelY: a.Vel.Y,
		})
	})
	return snap
}

// SaveSnapshot writes the current state to the configured snapshot directory.
func (s *Simulation) SaveSnapshot() (string, error) {
	if s.snapshotDir == "" {
		return "", fmt.Errorf("snapshot directory not configured")
	}
	path, err := telemetry.SaveSnapshot(s.CreateSnapshot(), s.snapshotDir)
	if err != nil {
		return "", err
	}
	s.logger.Info("snapshot saved", "path", path, "tick", s.tick, "agents", s.store.Len())
	return path, nil
}

// snapshotPlacement replays the agents of snap in order.
func snapshotPlacement(snap *telemetry.Snapshot) agents.Generator {
	return func(i int) (r2.Vec, r2.Vec) {
		a := snap.Agents[i]
		return r2.Vec{X: a.X, Y: a.Y}, r2.Vec{X: a.VelX, Y: a.VelY}
	}
}

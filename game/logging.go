package game

import (
	"github.com/pthm-cable/flock/telemetry"
)

// logPerfStats logs rolling-window timing statistics.
func (s *Simulation) logPerfStats(stats telemetry.PerfStats) {
	s.logger.Info("perf",
		"tick", s.tick,
		"agents", s.store.Len(),
		"partitions", s.numPartitions,
		"stats", stats,
	)
}

// logFlockStats logs one flock stats window.
func (s *Simulation) logFlockStats(stats telemetry.FlockStats) {
	s.logger.Info("flock", "stats", stats)
}

package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"
)

// FlockStats summarises the collective motion of the flock at one tick,
// plus lifecycle events since the previous sample.
type FlockStats struct {
	WindowStartTick int32 `csv:"-"`
	WindowEndTick   int32 `csv:"window_end"`

	Agents    int `csv:"agents"`
	Spawned   int `csv:"spawned"`
	Despawned int `csv:"despawned"`

	// Speed distribution
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Polarization is |mean unit heading|: 1 when every agent moves the same
	// way, near 0 for disordered motion.
	Polarization float64 `csv:"polarization"`

	// Neighbors within perception radius
	NeighborsMean float64 `csv:"neighbors_mean"`
	Isolated      int     `csv:"isolated"` // agents with no neighbors
}

// Percentile returns the p-th quantile of a sorted slice using the empirical
// CDF. p is clamped to [0, 1]. Returns 0 if the slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	p = math.Min(math.Max(p, 0), 1)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// ComputeSpeedStats calculates mean, std, and percentiles from speed values.
func ComputeSpeedStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	mean, std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// Polarization returns the length of the mean unit velocity. Stationary agents
// contribute nothing to the sum but still count toward the mean.
func Polarization(vel []r2.Vec) float64 {
	if len(vel) == 0 {
		return 0
	}
	var sum r2.Vec
	for _, v := range vel {
		n := r2.Norm(v)
		if n == 0 {
			continue
		}
		sum = r2.Add(sum, r2.Scale(1/n, v))
	}
	return r2.Norm(sum) / float64(len(vel))
}

// ComputeFlockStats fills the motion fields of a FlockStats sample.
// neighbors[i] is the neighbor count of agent i and may be nil.
func ComputeFlockStats(vel []r2.Vec, neighbors []int) FlockStats {
	s := FlockStats{Agents: len(vel)}
	if len(vel) == 0 {
		return s
	}

	speeds := make([]float64, len(vel))
	for i, v := range vel {
		speeds[i] = r2.Norm(v)
	}
	s.SpeedMean, s.SpeedStd, s.SpeedP10, s.SpeedP50, s.SpeedP90 = ComputeSpeedStats(speeds)
	s.Polarization = Polarization(vel)

	if len(neighbors) > 0 {
		counts := make([]float64, len(neighbors))
		for i, n := range neighbors {
			counts[i] = float64(n)
			if n == 0 {
				s.Isolated++
			}
		}
		s.NeighborsMean = stat.Mean(counts, nil)
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s FlockStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Int("agents", s.Agents),
		slog.Int("spawned", s.Spawned),
		slog.Int("despawned", s.Despawned),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("polarization", s.Polarization),
		slog.Float64("neighbors_mean", s.NeighborsMean),
		slog.Int("isolated", s.Isolated),
	)
}

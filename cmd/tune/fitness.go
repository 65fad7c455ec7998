package main

import (
	"io"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/game"
	"github.com/pthm-cable/flock/telemetry"
)

// FitnessEvaluator runs headless simulations and scores the resulting flock.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int
	seeds      []int64
	baseConfig *config.Config
	workers    int

	mu          sync.Mutex
	lastQuality float64
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		seeds:      seeds,
		baseConfig: baseCfg,
		workers:    1, // seeds already run in parallel
	}
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	qualities := make([]float64, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			qualities[idx] = computeQuality(fe.runSimulation(x, s))
		}(i, seed)
	}
	wg.Wait()

	quality := stat.Mean(qualities, nil)

	fe.mu.Lock()
	fe.lastQuality = quality
	fe.mu.Unlock()

	return -quality
}

// runSimulation executes a single headless run and returns its stats windows.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) []telemetry.FlockStats {
	cfg := fe.baseConfig.Clone()
	fe.params.ApplyToConfig(cfg, x)
	if err := cfg.Validate(); err != nil {
		return nil
	}

	var windows []telemetry.FlockStats
	sim, err := game.New(cfg, game.Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Seed:    seed,
		Workers: fe.workers,
		StatsCallback: func(stats telemetry.FlockStats) {
			windows = append(windows, stats)
		},
	})
	if err != nil {
		return nil
	}
	defer sim.Close()

	sim.Run(fe.maxTicks)
	return windows
}

// Quality component weights.
const (
	qualityWeightPolarization = 0.6
	qualityWeightCohesion     = 0.25
	qualityWeightSpacing      = 0.15

	qualityWarmupWindows = 2 // skip first N windows while the flock forms
	targetNeighbors      = 6.0
)

// computeQuality scores flock order in [0, 1] from stats windows: aligned
// headings, few isolated agents and a moderate neighbor count.
func computeQuality(windows []telemetry.FlockStats) float64 {
	if len(windows) <= qualityWarmupWindows {
		return 0
	}

	var polarization, cohesion, spacing float64
	var count int
	for _, w := range windows[qualityWarmupWindows:] {
		if w.Agents == 0 {
			continue
		}
		polarization += w.Polarization
		cohesion += 1 - float64(w.Isolated)/float64(w.Agents)

		// Penalise crowding as much as sparseness
		logErr := math.Log((w.NeighborsMean + 1) / (targetNeighbors + 1))
		spacing += math.Exp(-logErr * logErr)
		count++
	}
	if count == 0 {
		return 0
	}
	n := float64(count)

	quality := qualityWeightPolarization*polarization/n +
		qualityWeightCohesion*cohesion/n +
		qualityWeightSpacing*spacing/n

	return clamp01(quality)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	return min(max(x, 0), 1)
}

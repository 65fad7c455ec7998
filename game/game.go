// Package game drives the flocking pipeline one frame at a time.
package game

import (
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/agents"
	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/systems"
	"github.com/pthm-cable/flock/telemetry"
)

// Options configures a Simulation beyond what the config file holds.
type Options struct {
	Logger  *slog.Logger       // nil = slog.Default()
	Metrics *telemetry.Metrics // nil = no Prometheus export
	Workers int                // 0 = min(GOMAXPROCS, parallel.max_workers)

	// Generator places agents not covered by a spawn request. It is called
	// with a running count of the agents it has placed. Nil selects uniform
	// random placement with a random heading at half max speed.
	Generator agents.Generator
	Seed      int64 // overrides lifecycle.seed when non-zero

	// Restore, if set, seeds the initial population from a snapshot instead
	// of lifecycle.initial. Later growth uses Generator.
	Restore *telemetry.Snapshot

	OutputDir   string // CSV + config output, empty = disabled
	SnapshotDir string // JSON snapshots written by SaveSnapshot
	LogStats    bool   // periodic perf/flock log lines

	// StatsCallback, if set, receives every flushed flock stats window.
	StatsCallback func(telemetry.FlockStats)
}

// Simulation owns the agent store and runs the per-frame pipeline.
// Step must be called from a single goroutine. The setters may be called from
// any goroutine; their effect is applied at the start of the next Step.
type Simulation struct {
	cfg    *config.Config
	params systems.Params
	logger *slog.Logger

	store      *agents.Store
	index      systems.SpatialIndex
	partitions []systems.Partition
	pool       *workerPool
	scratch    *systems.Scratch // sequential path
	neighbors  []int

	rng      *rand.Rand
	rngSeed  int64
	gen      agents.Generator
	placed   int            // agents placed by gen so far
	requests []spawnRequest // being drained by the lifecycle phase

	// Pending host requests, guarded by mu
	mu         sync.Mutex
	pendingCfg *config.Config
	target     int
	queued     []spawnRequest
	releases   []agents.ReleaseFunc

	// Telemetry
	perf          *telemetry.PerfCollector
	collector     *telemetry.Collector
	metrics       *telemetry.Metrics
	outputManager *telemetry.OutputManager
	snapshotDir   string
	logStats      bool
	statsCallback func(telemetry.FlockStats)

	tick          int32
	numPartitions int
	requestedWork int
}

// New creates a simulation from a validated config and bootstraps the initial
// population. The returned simulation must be closed to stop its workers.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Lifecycle.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}

	cfg = cfg.Clone()
	s := &Simulation{
		cfg:           cfg,
		params:        systems.ParamsFrom(cfg),
		logger:        logger,
		store:         agents.New(max(cfg.Lifecycle.Initial, cfg.Lifecycle.Target, restoreCount(opts.Restore))),
		index:         systems.NewIndex(cfg),
		scratch:       systems.NewScratch(),
		rng:           rand.New(rand.NewSource(seed)),
		rngSeed:       seed,
		target:        cfg.Lifecycle.Target,
		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector:     telemetry.NewCollector(cfg.Telemetry.StatsInterval),
		metrics:       opts.Metrics,
		outputManager: om,
		snapshotDir:   opts.SnapshotDir,
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
		requestedWork: opts.Workers,
	}
	s.gen = opts.Generator
	if s.gen == nil {
		s.gen = s.randomPlacement
	}
	s.pool = newWorkerPool(s.workerCount())

	for _, w := range cfg.Derived.Warnings {
		logger.Warn("config adjusted", "detail", w)
	}
	if err := om.WriteConfig(cfg); err != nil {
		logger.Error("failed to write config", "error", err)
	}

	initial := cfg.Lifecycle.Initial
	if snap := opts.Restore; snap != nil {
		initial = len(snap.Agents)
		s.requests = append(s.requests, spawnRequest{gen: snapshotPlacement(snap), remaining: initial})
	}
	s.bootstrap(initial)

	logger.Info("simulation created",
		"seed", seed,
		"agents", s.store.Len(),
		"target", s.target,
		"workers", s.pool.size,
		"index", cfg.Spatial.Index,
		"boundary", cfg.Boundary.Policy,
	)
	return s, nil
}

func restoreCount(snap *telemetry.Snapshot) int {
	if snap == nil {
		return 0
	}
	return len(snap.Agents)
}

// workerCount sizes the force worker pool.
func (s *Simulation) workerCount() int {
	n := s.requestedWork
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
		if limit := s.cfg.Parallel.MaxWorkers; limit > 0 {
			n = min(n, limit)
		}
	}
	return max(n, 1)
}

// randomPlacement is the default generator: uniform position, random heading,
// half max speed.
func (s *Simulation) randomPlacement(int) (r2.Vec, r2.Vec) {
	pos := r2.Vec{X: s.rng.Float64() * s.cfg.World.Width, Y: s.rng.Float64() * s.cfg.World.Height}
	heading := s.rng.Float64() * 2 * math.Pi
	speed := s.cfg.Flock.MaxSpeed / 2
	vel := r2.Rotate(r2.Vec{X: speed}, heading, r2.Vec{})
	return pos, vel
}

// Len returns the live agent count.
func (s *Simulation) Len() int { return s.store.Len() }

// Tick returns the number of completed steps.
func (s *Simulation) Tick() int32 { return s.tick }

// Partitions returns the number of partitions used by the last step.
func (s *Simulation) Partitions() int { return s.numPartitions }

// Agent returns a copy of one agent's state.
func (s *Simulation) Agent(id agents.ID) (agents.Agent, bool) {
	return s.store.Get(id)
}

// Snapshot appends every live agent to dst[:0] in dense order.
func (s *Simulation) Snapshot(dst []agents.Agent) []agents.Agent {
	dst = dst[:0]
	s.store.Each(func(_ int, a agents.Agent) {
		dst = append(dst, a)
	})
	return dst
}

// LastTimings returns the phase breakdown of the last step in microseconds.
func (s *Simulation) LastTimings() telemetry.Breakdown { return s.perf.Last() }

// PerfStats returns rolling-window timing statistics.
func (s *Simulation) PerfStats() telemetry.PerfStats { return s.perf.Stats() }

// Store exposes the agent store for read-only use between steps.
func (s *Simulation) Store() *agents.Store { return s.store }

// Config returns the config in effect for the last step.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Seed returns the RNG seed in use.
func (s *Simulation) Seed() int64 { return s.rngSeed }

// SetConfig schedules cfg to take effect at the start of the next step.
func (s *Simulation) SetConfig(cfg *config.Config) {
	cp := cfg.Clone()
	s.mu.Lock()
	s.pendingCfg = cp
	s.mu.Unlock()
}

// Close stops the worker pool and flushes output files.
func (s *Simulation) Close() error {
	s.pool.stop()
	return s.outputManager.Close()
}

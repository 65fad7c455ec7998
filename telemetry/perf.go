package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase names for the simulation step.
const (
	PhaseLifecycle    = "lifecycle"
	PhaseIndexing     = "indexing"
	PhasePartitioning = "partitioning"
	PhaseForce        = "force"
	PhaseIntegration  = "integration"
)

// Phases lists the step phases in execution order.
var Phases = []string{PhaseLifecycle, PhaseIndexing, PhasePartitioning, PhaseForce, PhaseIntegration}

// Breakdown is the per-phase timing of one frame in microseconds.
type Breakdown struct {
	LifecycleUS    int64 `csv:"lifecycle_us"`
	IndexingUS     int64 `csv:"indexing_us"`
	PartitioningUS int64 `csv:"partitioning_us"`
	ForceUS        int64 `csv:"force_us"`
	IntegrationUS  int64 `csv:"integration_us"`
	TotalUS        int64 `csv:"total_us"`
}

// LogValue implements slog.LogValuer for structured logging.
func (b Breakdown) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("lifecycle_us", b.LifecycleUS),
		slog.Int64("indexing_us", b.IndexingUS),
		slog.Int64("partitioning_us", b.PartitioningUS),
		slog.Int64("force_us", b.ForceUS),
		slog.Int64("integration_us", b.IntegrationUS),
		slog.Int64("total_us", b.TotalUS),
	)
}

// PerfSample holds timing data for a single tick.
type PerfSample struct {
	TickDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
// Timing is observational only; nothing read from it feeds back into the simulation.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	tickStart     time.Time
	phaseStart    time.Time
	lastPhase     string
	last          Breakdown
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of ticks to average over (e.g., 60 for 1 second at 60fps).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartTick begins timing a new simulation tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.currentPhases = make(map[string]time.Duration, len(Phases))
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndTick finishes timing the current tick and records the sample.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	sample := PerfSample{
		TickDuration: now.Sub(p.tickStart),
		Phases:       p.currentPhases,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}

	p.last = Breakdown{
		LifecycleUS:    sample.Phases[PhaseLifecycle].Microseconds(),
		IndexingUS:     sample.Phases[PhaseIndexing].Microseconds(),
		PartitioningUS: sample.Phases[PhasePartitioning].Microseconds(),
		ForceUS:        sample.Phases[PhaseForce].Microseconds(),
		IntegrationUS:  sample.Phases[PhaseIntegration].Microseconds(),
		TotalUS:        sample.TickDuration.Microseconds(),
	}
}

// Last returns the breakdown of the most recently completed tick.
func (p *PerfCollector) Last() Breakdown {
	return p.last
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	// Tick timing
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P50TickDuration time.Duration
	P95TickDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total tick time
	PhasePct map[string]float64

	// Throughput
	TicksPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	ticks := make([]float64, p.sampleCount)
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		ticks[i] = float64(s.TickDuration)
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}
	sort.Float64s(ticks)

	avgTick := time.Duration(stat.Mean(ticks, nil))

	phaseAvg := make(map[string]time.Duration, len(phaseSum))
	phasePct := make(map[string]float64, len(phaseSum))
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgTick > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgTick) * 100
		}
	}

	var ticksPerSec float64
	if avgTick > 0 {
		ticksPerSec = float64(time.Second) / float64(avgTick)
	}

	return PerfStats{
		AvgTickDuration: avgTick,
		MinTickDuration: time.Duration(ticks[0]),
		MaxTickDuration: time.Duration(ticks[len(ticks)-1]),
		P50TickDuration: time.Duration(stat.Quantile(0.5, stat.Empirical, ticks, nil)),
		P95TickDuration: time.Duration(stat.Quantile(0.95, stat.Empirical, ticks, nil)),
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		TicksPerSecond:  ticksPerSec,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Int64("p50_tick_us", s.P50TickDuration.Microseconds()),
		slog.Int64("p95_tick_us", s.P95TickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd       int32   `csv:"window_end"`
	Agents          int     `csv:"agents"`
	AvgTickUS       int64   `csv:"avg_tick_us"`
	MinTickUS       int64   `csv:"min_tick_us"`
	MaxTickUS       int64   `csv:"max_tick_us"`
	P50TickUS       int64   `csv:"p50_tick_us"`
	P95TickUS       int64   `csv:"p95_tick_us"`
	TicksPerSec     float64 `csv:"ticks_per_sec"`
	LifecyclePct    float64 `csv:"lifecycle_pct"`
	IndexingPct     float64 `csv:"indexing_pct"`
	PartitioningPct float64 `csv:"partitioning_pct"`
	ForcePct        float64 `csv:"force_pct"`
	IntegrationPct  float64 `csv:"integration_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int32, agents int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:       windowEnd,
		Agents:          agents,
		AvgTickUS:       s.AvgTickDuration.Microseconds(),
		MinTickUS:       s.MinTickDuration.Microseconds(),
		MaxTickUS:       s.MaxTickDuration.Microseconds(),
		P50TickUS:       s.P50TickDuration.Microseconds(),
		P95TickUS:       s.P95TickDuration.Microseconds(),
		TicksPerSec:     s.TicksPerSecond,
		LifecyclePct:    s.PhasePct[PhaseLifecycle],
		IndexingPct:     s.PhasePct[PhaseIndexing],
		PartitioningPct: s.PhasePct[PhasePartitioning],
		ForcePct:        s.PhasePct[PhaseForce],
		IntegrationPct:  s.PhasePct[PhaseIntegration],
	}
}

package telemetry

import (
	"log/slog"
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseIndexing)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseForce)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}

	if _, ok := stats.PhaseAvg[PhaseIndexing]; !ok {
		t.Error("expected indexing phase to be tracked")
	}

	if _, ok := stats.PhaseAvg[PhaseForce]; !ok {
		t.Error("expected force phase to be tracked")
	}

	if stats.MinTickDuration > stats.P50TickDuration ||
		stats.P50TickDuration > stats.P95TickDuration ||
		stats.P95TickDuration > stats.MaxTickDuration {
		t.Errorf("tick quantiles out of order: min=%v p50=%v p95=%v max=%v",
			stats.MinTickDuration, stats.P50TickDuration, stats.P95TickDuration, stats.MaxTickDuration)
	}
}

func TestPerfCollector_LastBreakdown(t *testing.T) {
	pc := NewPerfCollector(10)

	pc.StartTick()
	pc.StartPhase(PhaseLifecycle)
	pc.StartPhase(PhaseIndexing)
	pc.StartPhase(PhaseForce)
	time.Sleep(2 * time.Millisecond)
	pc.StartPhase(PhaseIntegration)
	pc.EndTick()

	b := pc.Last()
	if b.ForceUS < 1000 {
		t.Errorf("ForceUS = %d, want at least 1000", b.ForceUS)
	}
	if b.PartitioningUS != 0 {
		t.Errorf("PartitioningUS = %d for a skipped phase", b.PartitioningUS)
	}
	sum := b.LifecycleUS + b.IndexingUS + b.PartitioningUS + b.ForceUS + b.IntegrationUS
	if sum > b.TotalUS {
		t.Errorf("phase sum %d exceeds total %d", sum, b.TotalUS)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseIndexing)
		time.Sleep(10 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration after window filled")
	}

	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseIntegration)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseForce)
		time.Sleep(500 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	if stats.PhasePct[PhaseForce] <= stats.PhasePct[PhaseIntegration] {
		t.Errorf("expected force (%v%%) > integration (%v%%)",
			stats.PhasePct[PhaseForce], stats.PhasePct[PhaseIntegration])
	}

	row := stats.ToCSV(5, 100)
	if row.ForcePct != stats.PhasePct[PhaseForce] || row.Agents != 100 || row.WindowEnd != 5 {
		t.Errorf("ToCSV = %+v", row)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()

	if stats.AvgTickDuration != 0 {
		t.Error("expected zero avg tick duration for empty collector")
	}

	if stats.PhaseAvg == nil {
		t.Error("expected non-nil PhaseAvg map")
	}

	if stats.PhasePct == nil {
		t.Error("expected non-nil PhasePct map")
	}

	if (pc.Last() != Breakdown{}) {
		t.Error("expected zero breakdown before first tick")
	}
}

func TestPerfStatsLogValue(t *testing.T) {
	stats := PerfStats{
		AvgTickDuration: 2 * time.Millisecond,
		PhasePct:        map[string]float64{PhaseForce: 70},
	}
	v := stats.LogValue()
	if v.Kind() != slog.KindGroup {
		t.Fatalf("LogValue kind = %v, want group", v.Kind())
	}
	found := false
	for _, a := range v.Group() {
		if a.Key == "force_pct" && a.Value.Float64() == 70 {
			found = true
		}
	}
	if !found {
		t.Error("force_pct missing from log group")
	}
}

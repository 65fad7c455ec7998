package main

import (
	"math"
	"testing"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/telemetry"
)

func TestNormalizeRoundTrip(t *testing.T) {
	pv := NewParamVector()
	raw := pv.DefaultVector()
	back := pv.Denormalize(pv.Normalize(raw))
	for i := range raw {
		if math.Abs(back[i]-raw[i]) > 1e-9 {
			t.Errorf("%s: got %v, want %v", pv.Specs[i].Name, back[i], raw[i])
		}
	}
}

func TestApplyToConfigClampsAndOrdersRadii(t *testing.T) {
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	pv := NewParamVector()
	pv.ApplyToConfig(cfg, []float64{-1, 2, 10, 30, 50})

	if cfg.Weights.Separation != 0 {
		t.Errorf("separation weight = %v, want clamped to 0", cfg.Weights.Separation)
	}
	if cfg.Weights.Alignment != 2 {
		t.Errorf("alignment weight = %v, want 2", cfg.Weights.Alignment)
	}
	if cfg.Weights.Cohesion != 4 {
		t.Errorf("cohesion weight = %v, want clamped to 4", cfg.Weights.Cohesion)
	}
	if cfg.Flock.SeparationRadius != cfg.Flock.PerceptionRadius {
		t.Errorf("separation radius %v exceeds perception %v", cfg.Flock.SeparationRadius, cfg.Flock.PerceptionRadius)
	}

	got := pv.ExtractFromConfig(cfg)
	if len(got) != pv.Dim() {
		t.Fatalf("ExtractFromConfig returned %d values, want %d", len(got), pv.Dim())
	}
}

func TestBuildConfigKeepsOverrides(t *testing.T) {
	base, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	base.Lifecycle.Initial = 77
	base.Lifecycle.Target = 77

	pv := NewParamVector()
	cfg, err := pv.BuildConfig(base, []float64{2, 1.5, 0.5, 60, 20})
	if err != nil {
		t.Fatalf("BuildConfig: %v", err)
	}
	if cfg.Lifecycle.Initial != 77 || cfg.Lifecycle.Target != 77 {
		t.Errorf("lifecycle = %d/%d, want 77/77", cfg.Lifecycle.Initial, cfg.Lifecycle.Target)
	}
	if cfg.Weights.Separation != 2 || cfg.Flock.PerceptionRadius != 60 {
		t.Errorf("tuned values not applied: separation %v, perception %v", cfg.Weights.Separation, cfg.Flock.PerceptionRadius)
	}
	if base.Weights.Separation == 2 {
		t.Error("BuildConfig modified its base config")
	}
}

func TestComputeQuality(t *testing.T) {
	ordered := telemetry.FlockStats{Agents: 100, Polarization: 1, NeighborsMean: targetNeighbors}
	disordered := telemetry.FlockStats{Agents: 100, Polarization: 0.1, Isolated: 80, NeighborsMean: 0.2}

	tests := []struct {
		name    string
		windows []telemetry.FlockStats
		want    float64
	}{
		{"too few windows", []telemetry.FlockStats{ordered, ordered}, 0},
		{"perfect flock", []telemetry.FlockStats{ordered, ordered, ordered, ordered}, 1},
		{"empty windows", []telemetry.FlockStats{ordered, ordered, {}, {}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeQuality(tt.windows); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("computeQuality = %v, want %v", got, tt.want)
			}
		})
	}

	good := computeQuality([]telemetry.FlockStats{ordered, ordered, ordered})
	bad := computeQuality([]telemetry.FlockStats{ordered, ordered, disordered})
	if bad >= good {
		t.Errorf("disordered flock scored %v, not below ordered %v", bad, good)
	}
}

package main

import (
	"github.com/pthm-cable/flock/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable steering parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Rule weights
			{Name: "w_separation", Path: "weights.separation", Min: 0.0, Max: 4.0, Default: 1.5},
			{Name: "w_alignment", Path: "weights.alignment", Min: 0.0, Max: 4.0, Default: 1.0},
			{Name: "w_cohesion", Path: "weights.cohesion", Min: 0.0, Max: 4.0, Default: 1.0},
			// Perception
			{Name: "perception_radius", Path: "flock.perception_radius", Min: 20, Max: 120, Default: 50},
			{Name: "separation_radius", Path: "flock.separation_radius", Min: 5, Max: 60, Default: 25},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies clamped parameter values to cfg. Order matches Specs.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Weights.Separation = clamped[0]
	cfg.Weights.Alignment = clamped[1]
	cfg.Weights.Cohesion = clamped[2]
	cfg.Flock.PerceptionRadius = clamped[3]
	// Separation never reaches past perception
	cfg.Flock.SeparationRadius = min(clamped[4], clamped[3])
}

// ExtractFromConfig extracts current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Weights.Separation,
		cfg.Weights.Alignment,
		cfg.Weights.Cohesion,
		cfg.Flock.PerceptionRadius,
		cfg.Flock.SeparationRadius,
	}
}

// BuildConfig returns a copy of base with values applied. base carries any CLI
// overrides, so they survive into the written config.
func (pv *ParamVector) BuildConfig(base *config.Config, values []float64) (*config.Config, error) {
	cfg := base.Clone()
	pv.ApplyToConfig(cfg, values)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

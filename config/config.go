// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is returned for configuration values that cannot be clamped into range.
var ErrInvalidConfig = errors.New("invalid config")

// Boundary policies.
const (
	PolicyWrap   = "wrap"
	PolicyMargin = "margin"
)

// Spatial index strategies.
const (
	IndexGrid   = "grid"
	IndexKDTree = "kdtree"
)

// Neighbor gather modes.
const (
	QueryRadius  = "radius"
	QueryNearest = "nearest"
)

// Config holds all simulation configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world" toml:"world"`
	Flock     FlockConfig     `yaml:"flock" toml:"flock"`
	Weights   WeightsConfig   `yaml:"weights" toml:"weights"`
	Boundary  BoundaryConfig  `yaml:"boundary" toml:"boundary"`
	Spatial   SpatialConfig   `yaml:"spatial" toml:"spatial"`
	Parallel  ParallelConfig  `yaml:"parallel" toml:"parallel"`
	Lifecycle LifecycleConfig `yaml:"lifecycle" toml:"lifecycle"`
	Physics   PhysicsConfig   `yaml:"physics" toml:"physics"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-" toml:"-"`
}

// WorldConfig holds simulation world dimensions.
type WorldConfig struct {
	Width  float64 `yaml:"width" toml:"width"`
	Height float64 `yaml:"height" toml:"height"`
}

// FlockConfig holds the speed/force bounds and perception radii shared by every agent.
type FlockConfig struct {
	MaxSpeed         float64 `yaml:"max_speed" toml:"max_speed"`
	MaxForce         float64 `yaml:"max_force" toml:"max_force"`
	PerceptionRadius float64 `yaml:"perception_radius" toml:"perception_radius"`
	SeparationRadius float64 `yaml:"separation_radius" toml:"separation_radius"`
}

// WeightsConfig holds per-rule steering weights.
type WeightsConfig struct {
	Separation float64 `yaml:"separation" toml:"separation"`
	Alignment  float64 `yaml:"alignment" toml:"alignment"`
	Cohesion   float64 `yaml:"cohesion" toml:"cohesion"`
	Boundary   float64 `yaml:"boundary" toml:"boundary"`
}

// BoundaryConfig selects how agents interact with the world edges.
type BoundaryConfig struct {
	Policy string  `yaml:"policy" toml:"policy"` // wrap | margin
	Margin float64 `yaml:"margin" toml:"margin"` // repulsion band width (margin policy only)
}

// SpatialConfig holds neighbor index parameters.
type SpatialConfig struct {
	Index         string  `yaml:"index" toml:"index"`                   // grid | kdtree
	CellSize      float64 `yaml:"cell_size" toml:"cell_size"`           // 0 = perception radius
	MaxNeighbors  int     `yaml:"max_neighbors" toml:"max_neighbors"`   // radius query cap, 0 = unlimited
	NeighborQuery string  `yaml:"neighbor_query" toml:"neighbor_query"` // radius | nearest
	KNearestCap   int     `yaml:"k_nearest_cap" toml:"k_nearest_cap"`
}

// ParallelConfig holds partitioned force computation parameters.
type ParallelConfig struct {
	Threshold  int `yaml:"threshold" toml:"threshold"`     // below this agent count, run sequentially
	MaxWorkers int `yaml:"max_workers" toml:"max_workers"` // cap on regions and concurrent tasks
}

// LifecycleConfig holds population management parameters.
type LifecycleConfig struct {
	Initial      int   `yaml:"initial" toml:"initial"`
	Target       int   `yaml:"target" toml:"target"`
	SpawnBatch   int   `yaml:"spawn_batch" toml:"spawn_batch"`
	DespawnBatch int   `yaml:"despawn_batch" toml:"despawn_batch"`
	Seed         int64 `yaml:"seed" toml:"seed"` // 0 = time-based
}

// PhysicsConfig holds the fixed step used by headless runs.
type PhysicsConfig struct {
	DT float64 `yaml:"dt" toml:"dt"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow    int `yaml:"perf_window" toml:"perf_window"`       // ticks in the rolling perf window
	LogInterval   int `yaml:"log_interval" toml:"log_interval"`     // ticks between perf log lines
	StatsInterval int `yaml:"stats_interval" toml:"stats_interval"` // ticks between flock stats samples
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	CellSize   float64 // effective grid cell size
	Wrap       bool    // boundary policy is toroidal
	UseKDTree  bool
	UseNearest bool
	Warnings   []string // adjustments made during validation
}

// Load loads configuration from a YAML or TOML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. Files ending in .toml are parsed as TOML,
// everything else as YAML.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the embedded default configuration, validated.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises enum values, clamps negative magnitudes to zero and recomputes
// derived values. Clamped fields are recorded in Derived.Warnings. Only values that
// have no sensible clamp (unknown enum strings) produce an error.
func (c *Config) Validate() error {
	c.Derived.Warnings = c.Derived.Warnings[:0]

	c.Boundary.Policy = strings.ToLower(strings.TrimSpace(c.Boundary.Policy))
	switch c.Boundary.Policy {
	case "":
		c.Boundary.Policy = PolicyWrap
	case PolicyWrap, PolicyMargin:
	default:
		return fmt.Errorf("%w: boundary.policy %q (want %s or %s)", ErrInvalidConfig, c.Boundary.Policy, PolicyWrap, PolicyMargin)
	}

	c.Spatial.Index = strings.ToLower(strings.TrimSpace(c.Spatial.Index))
	switch c.Spatial.Index {
	case "":
		c.Spatial.Index = IndexGrid
	case IndexGrid, IndexKDTree:
	default:
		return fmt.Errorf("%w: spatial.index %q (want %s or %s)", ErrInvalidConfig, c.Spatial.Index, IndexGrid, IndexKDTree)
	}

	c.Spatial.NeighborQuery = strings.ToLower(strings.TrimSpace(c.Spatial.NeighborQuery))
	switch c.Spatial.NeighborQuery {
	case "":
		c.Spatial.NeighborQuery = QueryRadius
	case QueryRadius, QueryNearest:
	default:
		return fmt.Errorf("%w: spatial.neighbor_query %q (want %s or %s)", ErrInvalidConfig, c.Spatial.NeighborQuery, QueryRadius, QueryNearest)
	}

	c.clampFloat("world.width", &c.World.Width)
	c.clampFloat("world.height", &c.World.Height)
	c.clampFloat("flock.max_speed", &c.Flock.MaxSpeed)
	c.clampFloat("flock.max_force", &c.Flock.MaxForce)
	c.clampFloat("flock.perception_radius", &c.Flock.PerceptionRadius)
	c.clampFloat("flock.separation_radius", &c.Flock.SeparationRadius)
	c.clampFloat("boundary.margin", &c.Boundary.Margin)
	c.clampFloat("spatial.cell_size", &c.Spatial.CellSize)
	c.clampFloat("physics.dt", &c.Physics.DT)
	c.clampInt("spatial.max_neighbors", &c.Spatial.MaxNeighbors)
	c.clampInt("spatial.k_nearest_cap", &c.Spatial.KNearestCap)
	c.clampInt("parallel.threshold", &c.Parallel.Threshold)
	c.clampInt("parallel.max_workers", &c.Parallel.MaxWorkers)
	c.clampInt("lifecycle.initial", &c.Lifecycle.Initial)
	c.clampInt("lifecycle.target", &c.Lifecycle.Target)
	c.clampInt("lifecycle.spawn_batch", &c.Lifecycle.SpawnBatch)
	c.clampInt("lifecycle.despawn_batch", &c.Lifecycle.DespawnBatch)

	if c.Flock.SeparationRadius > c.Flock.PerceptionRadius {
		c.warn("flock.separation_radius %.2f exceeds perception_radius %.2f", c.Flock.SeparationRadius, c.Flock.PerceptionRadius)
	}

	c.computeDerived()
	return nil
}

// clampFloat replaces negative or NaN values with zero.
func (c *Config) clampFloat(name string, v *float64) {
	if math.IsNaN(*v) || *v < 0 {
		c.warn("%s %v clamped to 0", name, *v)
		*v = 0
	}
}

func (c *Config) clampInt(name string, v *int) {
	if *v < 0 {
		c.warn("%s %d clamped to 0", name, *v)
		*v = 0
	}
}

func (c *Config) warn(format string, args ...any) {
	c.Derived.Warnings = append(c.Derived.Warnings, fmt.Sprintf(format, args...))
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	cell := c.Spatial.CellSize
	if cell == 0 {
		cell = c.Flock.PerceptionRadius
	}
	// Guard against degenerate grids
	c.Derived.CellSize = math.Max(cell, 1)
	c.Derived.Wrap = c.Boundary.Policy == PolicyWrap
	c.Derived.UseKDTree = c.Spatial.Index == IndexKDTree
	c.Derived.UseNearest = c.Spatial.NeighborQuery == QueryNearest
}

// Clone returns a deep copy suitable for handing to a running simulation.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Derived.Warnings = append([]string(nil), c.Derived.Warnings...)
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

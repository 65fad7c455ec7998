package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus metrics for the frame pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	PhaseDurations *prometheus.HistogramVec
	Agents         prometheus.Gauge
	Partitions     prometheus.Gauge
	Frames         prometheus.Counter
}

// NewMetrics registers flock metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil. Registering twice
// against the same registry returns the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	phases, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flock_phase_duration_seconds",
		Help:    "Duration of each frame phase in seconds.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}, []string{"phase"}), "flock_phase_duration_seconds")
	if err != nil {
		return nil, err
	}
	agents, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flock_agents",
		Help: "Current number of live agents.",
	}), "flock_agents")
	if err != nil {
		return nil, err
	}
	partitions, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flock_partitions",
		Help: "Number of spatial partitions used in the last frame.",
	}), "flock_partitions")
	if err != nil {
		return nil, err
	}
	frames, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flock_frames_total",
		Help: "Total number of simulated frames.",
	}), "flock_frames_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:       gatherer,
		PhaseDurations: phases,
		Agents:         agents,
		Partitions:     partitions,
		Frames:         frames,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Observe records one frame.
func (m *Metrics) Observe(b Breakdown, agents, partitions int) {
	if m == nil {
		return
	}
	observe := func(phase string, us int64) {
		m.PhaseDurations.WithLabelValues(phase).Observe((time.Duration(us) * time.Microsecond).Seconds())
	}
	observe(PhaseLifecycle, b.LifecycleUS)
	observe(PhaseIndexing, b.IndexingUS)
	observe(PhasePartitioning, b.PartitioningUS)
	observe(PhaseForce, b.ForceUS)
	observe(PhaseIntegration, b.IntegrationUS)

	m.Agents.Set(float64(agents))
	m.Partitions.Set(float64(partitions))
	m.Frames.Inc()
}

// register adds c to reg, returning the already registered collector of the
// same type if there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	b := Breakdown{IndexingUS: 120, ForceUS: 800, IntegrationUS: 40, TotalUS: 1000}
	m.Observe(b, 500, 4)
	m.Observe(b, 450, 3)

	if got := testutil.ToFloat64(m.Agents); got != 450 {
		t.Errorf("flock_agents = %v, want 450", got)
	}
	if got := testutil.ToFloat64(m.Partitions); got != 3 {
		t.Errorf("flock_partitions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Frames); got != 2 {
		t.Errorf("flock_frames_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "flock_phase_duration_seconds", "force"); count != 2 {
		t.Errorf("force phase sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesFlockMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.Observe(Breakdown{ForceUS: 10}, 7, 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"flock_phase_duration_seconds",
		"flock_agents 7",
		"flock_partitions 1",
		"flock_frames_total 1",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("expected %q in /metrics output", metric)
		}
	}
}

func TestNewMetricsReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("second NewMetrics: %v", err)
	}
	a.Observe(Breakdown{}, 1, 1)
	if got := testutil.ToFloat64(b.Frames); got != 1 {
		t.Errorf("second collector sees %v frames, want shared counter", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Observe(Breakdown{ForceUS: 1}, 1, 1)
	if m.Handler() == nil {
		t.Error("nil metrics should still return a handler")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name, phase string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "phase" && lp.GetValue() == phase && m.GetHistogram() != nil {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}

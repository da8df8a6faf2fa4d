package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatherValue returns the value of the first sample of family name whose
// labels include all of want.
func gatherValue(t *testing.T, reg *prom.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			match := true
			for k, v := range want {
				if labels[k] != v {
					match = false
				}
			}
			if !match {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestPrometheusRecorder_Counters(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncBuildOutcome(OutcomeSuccess)
	pr.IncBuildOutcome(OutcomeSuccess)
	pr.IncBuildOutcome(OutcomeFailed)
	pr.IncReload("build")
	pr.SetLiveReloadClients(3)
	pr.IncWatchEvent("change")
	pr.ObserveBuildDuration("spec/latest/index.html", 250*time.Millisecond)

	assert.InDelta(t, 2, gatherValue(t, reg, "specserve_build_outcomes_total", map[string]string{"outcome": "success"}), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "specserve_build_outcomes_total", map[string]string{"outcome": "failed"}), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "specserve_reloads_total", map[string]string{"reason": "build"}), 0)
	assert.InDelta(t, 3, gatherValue(t, reg, "specserve_livereload_clients", nil), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "specserve_build_duration_seconds", map[string]string{"target": "spec/latest/index.html"}), 0)
}

func TestNilAndNoopRecorders(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncReload("x")
	pr.ObserveBuildDuration("t", time.Second)

	r := OrNoop(nil)
	_, ok := r.(NoopRecorder)
	assert.True(t, ok)
}

func TestHTTPHandler(t *testing.T) {
	reg := NewRegistry()
	NewPrometheusRecorder(reg).IncReload("watch")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `specserve_reloads_total{reason="watch"} 1`)
}

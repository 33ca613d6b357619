package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExposesNamedMetrics(t *testing.T) {
	r := NewRegistry()
	r.RunsTotal.WithLabelValues("COMPLETE").Inc()
	r.ScenariosScored.Add(10000)
	r.FeedRequests.WithLabelValues("coingecko", "ok").Inc()
	r.CacheHits.WithLabelValues("prices").Inc()
	r.StepDuration.WithLabelValues("generate_scenarios").Observe(0.2)
	r.ActiveRuns.Inc()

	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)
	body := rr.Body.String()

	for _, name := range []string{
		"lendvar_runs_total",
		"lendvar_run_duration_seconds",
		"lendvar_scenarios_scored_total",
		"lendvar_step_duration_seconds",
		"lendvar_active_runs",
		"lendvar_feed_requests_total",
		"lendvar_cache_hits_total",
		"go_goroutines",
	} {
		assert.Contains(t, body, name)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	// Two registries in one process must not panic on duplicate
	// registration; each run of the CLI builds its own.
	a := NewRegistry()
	b := NewRegistry()
	a.ActiveRuns.Inc()
	b.ActiveRuns.Inc()
}

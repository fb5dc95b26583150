package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// Safe before Init.
	ObservePoll(true)
	IncGroupCommand(ResultSkipped)

	reg := prometheus.NewRegistry()
	Init(reg, reg, func() float64 { return 7 })

	ObservePoll(true)
	ObservePoll(true)
	ObservePoll(false)
	ObserveDiscovery(true, 3)
	IncGroupCommand(ResultSkipped)
	IncRuleRun(false)

	assert.InDelta(t, 2, testutil.ToFloat64(pollsTotal.WithLabelValues(ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pollsTotal.WithLabelValues(ResultFailed)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(discoveredDevices), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(groupCommands.WithLabelValues(ResultSkipped)), 0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "venthub_registry_devices 7")
	assert.Contains(t, string(body), "venthub_schedule_rule_runs_total")
}

package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expvar map names are process-global, so a single test drives the whole
// updater lifecycle.
func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)

	su.RegisterMetric("NumConnections")
	su.RegisterMetric("NumMessages")

	su.Run()
	defer su.Stop()

	su.Incr("NumConnections")
	su.Incr("NumConnections")
	su.Incr("NumMessages")
	su.Decr("NumConnections")

	require.Eventually(t, func() bool {
		return su.vars.Get("NumConnections").(*expvar.Int).Value() == 1 &&
			su.vars.Get("NumMessages").(*expvar.Int).Value() == 1
	}, time.Second, 10*time.Millisecond, "expected counter updates to be applied")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))

	assert.Equal(t, http.StatusOK, w.Code, "expected ok")

	var vars map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&vars), "failed to decode stats payload")
	assert.Equal(t, float64(1), vars["NumConnections"], "expected connection count exposed")
	assert.Contains(t, vars, "Uptime", "expected uptime metric")
	assert.Contains(t, vars, "StartTime", "expected start time metric")
}

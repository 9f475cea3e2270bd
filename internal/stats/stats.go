package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater funnels counter updates through a single goroutine and
// exposes them on /debug/vars.
type StatsUpdater struct {
	vars    *expvar.Map
	start   time.Time
	updates chan metricDelta
}

type metricDelta struct {
	name  string
	delta int64
}

func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:    expvar.NewMap("tripchat-stats"),
		start:   time.Now().UTC(),
		updates: make(chan metricDelta, 512),
	}

	su.vars.Set("StartTime", expvar.Func(func() any {
		return su.start.Format(time.RFC3339)
	}))
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(su.start).Milliseconds()
	}))

	mux.Handle("GET /debug/vars", http.HandlerFunc(su.serveVars))

	return su
}

func (su *StatsUpdater) serveVars(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	payload := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		payload[kv.Key] = value
	})

	json.NewEncoder(w).Encode(payload)
}

func (su *StatsUpdater) apply() {
	for d := range su.updates {
		metric := su.vars.Get(d.name)
		if metric == nil {
			panic("metric not found: " + d.name)
		}

		metric.(*expvar.Int).Add(d.delta)
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.updates <- metricDelta{name: name, delta: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updates <- metricDelta{name: name, delta: -1}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, expvar.NewInt(name))
}

func (su *StatsUpdater) Run() {
	go su.apply()
}

func (su *StatsUpdater) Stop() {
	close(su.updates)
}

// Package metrics exposes dispatchd's Prometheus instrumentation, the same
// promauto/promhttp wiring Chapter13/prom_http demonstrates, rewritten
// against the scheduler/pool's own counters and gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every gauge/counter dispatchd exports at /metrics.
type Metrics struct {
	WorkersRegistered prometheus.Gauge
	WorkersIdle       prometheus.Gauge
	JobsQueued        prometheus.Gauge
	PullsPending      prometheus.Gauge
	CallsDispatched   prometheus.Counter
	ObjectsRegistered prometheus.Counter
	FatalErrors       prometheus.Counter
}

// New registers and returns dispatchd's metric set against the default
// registry.
func New() *Metrics {
	return &Metrics{
		WorkersRegistered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dispatchd_workers_registered",
			Help: "Number of workers that have completed registration.",
		}),
		WorkersIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dispatchd_workers_idle",
			Help: "Number of workers currently sitting in the scheduler's worker queue.",
		}),
		JobsQueued: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dispatchd_jobs_queued",
			Help: "Number of calls currently sitting in the scheduler's job queue.",
		}),
		PullsPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dispatchd_pulls_pending",
			Help: "Number of pull requests deferred in the scheduler's pull queue.",
		}),
		CallsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatchd_calls_dispatched_total",
			Help: "Total number of INVOKE directives sent to workers.",
		}),
		ObjectsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatchd_objects_registered_total",
			Help: "Total number of objects allocated in the object table.",
		}),
		FatalErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatchd_fatal_errors_total",
			Help: "Total number of fatal protocol violations observed.",
		}),
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

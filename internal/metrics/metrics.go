package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/loykin/appconnect/internal/oserr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appconnect",
			Subsystem: "transport",
			Name:      "queries_total",
			Help:      "Number of process lookups by bundle path.",
		}, []string{"result"},
	)
	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appconnect",
			Subsystem: "transport",
			Name:      "launches_total",
			Help:      "Number of application launches.",
		}, []string{"result"},
	)
	sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appconnect",
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Number of events sent to running applications.",
		}, []string{"result", "mode"},
	)
	launchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "appconnect",
			Subsystem: "transport",
			Name:      "launch_duration_seconds",
			Help:      "Time spent in a launch call, successful or not.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Result label values.
const (
	ResultOK         = "ok"
	ResultNotRunning = "not_running"
	ResultTimeout    = "timeout"
	ResultCantLaunch = "cant_launch"
	ResultError      = "error"
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{queries, launches, sends, launchDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Result classifies err into a low-cardinality label value.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	var ce *oserr.CantLaunchApplicationError
	if errors.As(err, &ce) {
		return ResultCantLaunch
	}
	code, _ := oserr.CodeOf(err)
	switch code {
	case oserr.CodeProcNotFound:
		return ResultNotRunning
	case oserr.CodeTimeout:
		return ResultTimeout
	}
	return ResultError
}

// The helpers below no-op until Register has been called.

func IncQuery(result string) {
	if regOK.Load() {
		queries.WithLabelValues(result).Inc()
	}
}

func IncLaunch(result string) {
	if regOK.Load() {
		launches.WithLabelValues(result).Inc()
	}
}

func IncSend(result, mode string) {
	if regOK.Load() {
		sends.WithLabelValues(result, mode).Inc()
	}
}

func ObserveLaunchDuration(seconds float64) {
	if regOK.Load() {
		launchDuration.Observe(seconds)
	}
}

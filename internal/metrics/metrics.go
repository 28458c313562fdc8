// Package metrics holds the Prometheus collectors for external tool
// invocations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NameSpace = "nixkil"
	Subsystem = "runner"

	// Invocations counts tool invocations by tool and outcome
	// (ok, failed, timeout, cancelled, launch_error).
	Invocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "invocations_total"),
		Help: "How many external tool invocations were made",
	}, []string{"tool", "outcome"})

	// InvocationDuration is the wall-clock time of each invocation
	InvocationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    prometheus.BuildFQName(NameSpace, Subsystem, "invocation_duration_seconds"),
		Help:    "Time taken by external tool invocations",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 600},
	}, []string{"tool"})

	// TruncatedOutputs counts invocations whose output hit the size cap
	TruncatedOutputs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: prometheus.BuildFQName(NameSpace, Subsystem, "truncated_outputs_total"),
		Help: "How many invocations produced more output than the cap",
	}, []string{"tool"})
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Invocations, InvocationDuration, TruncatedOutputs} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns an HTTP handler serving the collectors registered in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

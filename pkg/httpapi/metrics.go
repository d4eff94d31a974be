package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Asygurare/salespilot/agent/contract"
)

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salespilot_dispatch_total",
			Help: "Dispatched action invocations by outcome.",
		},
		[]string{"action", "status", "kind"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "salespilot_dispatch_duration_seconds",
			Help: "Action execution time, including provider calls.",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal, dispatchDuration)
}

func observeDispatch(name string, res contract.ActionResult, elapsed time.Duration) {
	dispatchTotal.WithLabelValues(name, string(res.Status), string(res.Kind)).Inc()
	dispatchDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

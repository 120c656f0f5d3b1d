package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelswitch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "modelswitch_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	SwitchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelswitch_switches_total",
			Help: "Model switch attempts by result",
		},
		[]string{"result"},
	)

	SwitchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modelswitch_switch_duration_seconds",
			Help:    "Time to stop the old model and launch the new one",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	ActiveModel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelswitch_active_model",
			Help: "1 for the model currently selected",
		},
		[]string{"model"},
	)
)

// Switch results.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultLaunchError = "launch_error"
	ResultStoreError  = "store_error"
)

// SetActiveModel moves the active model gauge to model.
func SetActiveModel(model string) {
	ActiveModel.Reset()
	if model != "" {
		ActiveModel.WithLabelValues(model).Set(1)
	}
}

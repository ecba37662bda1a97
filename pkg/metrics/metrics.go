// Package metrics holds the Prometheus collectors shared by the telemetry
// client, the plug client and the automation loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "goodwe"

var (
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Requests made to the monitoring and plug backends",
	}, []string{"endpoint", "result"})

	UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of requests made to the monitoring and plug backends",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	SessionLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_logins_total",
		Help:      "Logins against the monitoring backend",
	}, []string{"result"})

	AutomationCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "automation_cycles_total",
		Help:      "Automation loop cycles by reason and result",
	}, []string{"reason", "result"})

	BatteryPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "battery_percent",
		Help:      "Last battery state of charge read by the automation loop (%)",
	})

	LoadWatts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "load_watts",
		Help:      "Last household load read by the automation loop (W)",
	})

	PlugDesiredOn = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "plug_desired_on",
		Help:      "1 when the automation last asked for the plug to be on",
	})
)

func init() {
	prometheus.MustRegister(
		UpstreamRequests,
		UpstreamDuration,
		SessionLogins,
		AutomationCycles,
		BatteryPercent,
		LoadWatts,
		PlugDesiredOn,
	)
}

// ObserveUpstream records the outcome and latency of one upstream request.
func ObserveUpstream(endpoint string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	UpstreamRequests.WithLabelValues(endpoint, result).Inc()
	UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

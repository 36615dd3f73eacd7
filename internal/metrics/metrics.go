// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EmailsTotal counts relay attempts by result (sent, failed, not_configured, rejected).
	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outfred",
			Name:      "emails_total",
			Help:      "Total number of email relay attempts",
		},
		[]string{"result"},
	)

	// EmailSendDuration measures SMTP delivery time.
	EmailSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "outfred",
			Name:      "email_send_duration_seconds",
			Help:      "Duration of SMTP deliveries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// AuthAttempts counts login, register and logout calls by result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outfred",
			Name:      "auth_attempts_total",
			Help:      "Total number of auth operations",
		},
		[]string{"op", "result"},
	)

	// ActiveContainers tracks live per-browser auth containers.
	ActiveContainers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "outfred",
			Name:      "auth_containers",
			Help:      "Number of live auth state containers",
		},
	)

	// PushSubscribers tracks open websocket subscribers.
	PushSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "outfred",
			Name:      "push_subscribers",
			Help:      "Number of open notification websockets",
		},
	)
)

// Result label helper.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler {
	return promhttp.Handler()
}

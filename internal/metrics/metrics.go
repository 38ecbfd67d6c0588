// Package metrics holds the Prometheus collectors for the API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Credential resolution results.
const (
	ResolutionAnonymous     = "anonymous"
	ResolutionAuthenticated = "authenticated"
	ResolutionInvalid       = "invalid"
	ResolutionExpired       = "expired"
)

// OperationsTotal counts executed operations by outcome code ("ok" on success).
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deepthoughts_operations_total",
		Help: "Total number of executed operations",
	},
	[]string{"operation", "status"},
)

// OperationDuration observes operation latency.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "deepthoughts_operation_duration_seconds",
		Help:    "Operation execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// CredentialResolutions counts how inbound credentials were resolved.
var CredentialResolutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deepthoughts_credential_resolutions_total",
		Help: "Credential resolutions by result",
	},
	[]string{"result"},
)

// Register registers all collectors with reg. Panics on duplicate registration.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(OperationDuration)
	reg.MustRegister(CredentialResolutions)
}

func RecordOperation(operation, status string, duration time.Duration) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordResolution(result string) {
	CredentialResolutions.WithLabelValues(result).Inc()
}

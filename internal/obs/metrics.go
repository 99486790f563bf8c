package obs

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldline_authz_decisions_total",
			Help: "Authorization decisions by resource, operation and outcome.",
		},
		[]string{"resource", "operation", "outcome"},
	)

	tokenOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldline_token_operations_total",
			Help: "Token issue/verify/refresh calls by result.",
		},
		[]string{"operation", "result"},
	)

	auditWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldline_audit_writes_total",
			Help: "Audit log appends by status.",
		},
		[]string{"status"},
	)

	hashDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldline_password_hash_seconds",
			Help:    "Password hashing latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

var initOnce sync.Once

// Init registers the core metrics with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(authzDecisions, tokenOps, auditWrites, hashDuration)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts one authorization decision.
func ObserveDecision(resource, operation string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	authzDecisions.WithLabelValues(resource, operation, outcome).Inc()
}

// ObserveTokenOp counts one token service call.
func ObserveTokenOp(operation, result string) {
	tokenOps.WithLabelValues(operation, result).Inc()
}

// ObserveAuditWrite counts one audit append attempt.
func ObserveAuditWrite(ok bool) {
	status := "error"
	if ok {
		status = "ok"
	}
	auditWrites.WithLabelValues(status).Inc()
}

// ObserveHashDuration records one password hashing run.
func ObserveHashDuration(seconds float64) {
	hashDuration.Observe(seconds)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docport", Name: "session_reconciliations_total", Help: "Number of completed session reconciliation passes by outcome."},
		[]string{"outcome"},
	)
	RenewalAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docport", Name: "token_renewal_attempts_total", Help: "Number of provider token renewal attempts by strategy and result."},
		[]string{"strategy", "result"},
	)
	BackendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docport", Name: "backend_errors_total", Help: "Number of backend API failures by error kind."},
		[]string{"kind"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docport", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docport", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(ReconciliationsTotal)
	reg.MustRegister(RenewalAttempts)
	reg.MustRegister(BackendErrors)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}

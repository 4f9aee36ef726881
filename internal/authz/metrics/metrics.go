package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for authorization decisions.
type Metrics struct {
	Decisions            *prometheus.CounterVec
	ValidationFailures   *prometheus.CounterVec
	TenantMismatches     prometheus.Counter
	ConsentGraceUses     prometheus.Counter
	BreakGlassAdmissions prometheus.Counter
	BreakGlassClamped    prometheus.Counter
	PolicyReloads        *prometheus.CounterVec
	EvaluateLatency      prometheus.Histogram
}

// New registers and returns decision metrics collectors.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_decisions_total",
			Help: "Total number of authorization decisions, labeled by outcome and purpose",
		}, []string{"decision", "purpose"}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_validation_failures_total",
			Help: "Total number of contexts rejected by validation, labeled by severity",
		}, []string{"severity"}),
		TenantMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custos_tenant_mismatches_total",
			Help: "Total number of decisions forced to deny by the tenant isolation pre-condition",
		}),
		ConsentGraceUses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custos_consent_grace_uses_total",
			Help: "Total number of decisions that relied on a consent grace period",
		}),
		BreakGlassAdmissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custos_breakglass_admissions_total",
			Help: "Total number of admitted break-glass emergency access grants",
		}),
		BreakGlassClamped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custos_breakglass_clamped_total",
			Help: "Total number of break-glass requests whose expiry was clamped to the configured maximum",
		}),
		PolicyReloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_policy_reloads_total",
			Help: "Total number of rule set reload attempts, labeled by result",
		}, []string{"result"}),
		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custos_evaluate_latency_seconds",
			Help:    "Latency of decision evaluation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementDecision(decision, purpose string) {
	m.Decisions.WithLabelValues(decision, purpose).Inc()
}

func (m *Metrics) IncrementValidationFailure(severity string) {
	m.ValidationFailures.WithLabelValues(severity).Inc()
}

func (m *Metrics) IncrementPolicyReload(result string) {
	m.PolicyReloads.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	m.EvaluateLatency.Observe(d.Seconds())
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Methods are
// nil-safe so services can run without metrics in tests.
type Metrics struct {
	NoncesIssued    prometheus.Counter
	NoncesConsumed  prometheus.Counter
	NonceRejections *prometheus.CounterVec

	// Verdicts by rule type and validity
	Verdicts      *prometheus.CounterVec
	EngineLatency *prometheus.HistogramVec

	OracleBreakerOpen prometheus.Gauge

	Verifications *prometheus.CounterVec
	RolesGranted  prometheus.Counter

	SweepOutcomes *prometheus.CounterVec
	SweepDuration prometheus.Histogram

	RateLimited *prometheus.CounterVec
}

// New registers every metric with reg. Pass prometheus.DefaultRegisterer in
// main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NoncesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "verethfier_nonces_issued_total",
			Help: "Total number of verification nonces issued",
		}),
		NoncesConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "verethfier_nonces_consumed_total",
			Help: "Total number of nonces consumed by a verification attempt",
		}),
		NonceRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verethfier_nonce_rejections_total",
			Help: "Nonce checks that failed, by reason",
		}, []string{"reason"}), // reason: "missing", "mismatch"

		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verethfier_engine_verdicts_total",
			Help: "Verification verdicts by rule type and validity",
		}, []string{"rule_type", "valid"}),
		EngineLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verethfier_engine_duration_seconds",
			Help:    "Duration of engine operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),

		OracleBreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verethfier_oracle_circuit_open",
			Help: "1 while the asset index circuit breaker is open",
		}),

		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verethfier_verifications_total",
			Help: "Signature verification requests by outcome",
		}, []string{"outcome"}),
		RolesGranted: factory.NewCounter(prometheus.CounterOpts{
			Name: "verethfier_roles_granted_total",
			Help: "Roles granted on the chat platform",
		}),

		SweepOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verethfier_reconcile_assignments_total",
			Help: "Assignments processed by reconciliation, by outcome",
		}, []string{"outcome"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verethfier_reconcile_sweep_duration_seconds",
			Help:    "Duration of a full reconciliation sweep",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),

		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verethfier_rate_limited_total",
			Help: "Requests rejected by the ingress rate limiter, by endpoint class",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncrementNonceIssued() {
	if m != nil {
		m.NoncesIssued.Inc()
	}
}

func (m *Metrics) IncrementNonceConsumed() {
	if m != nil {
		m.NoncesConsumed.Inc()
	}
}

func (m *Metrics) IncrementNonceRejected(reason string) {
	if m != nil {
		m.NonceRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementVerdict(ruleType string, valid bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.Verdicts.WithLabelValues(ruleType, v).Inc()
}

func (m *Metrics) ObserveEngineLatency(operation string, d time.Duration) {
	if m != nil {
		m.EngineLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementVerification(outcome string) {
	if m != nil {
		m.Verifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementRolesGranted() {
	if m != nil {
		m.RolesGranted.Inc()
	}
}

func (m *Metrics) IncrementSweepOutcome(outcome string, n int) {
	if m != nil && n > 0 {
		m.SweepOutcomes.WithLabelValues(outcome).Add(float64(n))
	}
}

func (m *Metrics) ObserveSweepDuration(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRateLimited(class string) {
	if m != nil {
		m.RateLimited.WithLabelValues(class).Inc()
	}
}

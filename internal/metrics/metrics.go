// Package metrics exposes scoring and alert counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kestrel"

// Collector owns a private registry; nothing is registered on the default one.
type Collector struct {
	registry *prometheus.Registry

	checks        *prometheus.CounterVec
	checkFailures *prometheus.CounterVec
	ruleHits      *prometheus.CounterVec
	riskScore     prometheus.Histogram
	checkDuration prometheus.Histogram
	alertsCreated *prometheus.CounterVec
	alertsReview  *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
}

// NewCollector registers every Kestrel metric plus the Go runtime and
// process collectors.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Transactions scored, by risk level and block decision.",
		}, []string{"risk_level", "blocked"}),
		checkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_failures_total",
			Help:      "Checks that returned an error, by failing stage.",
		}, []string{"stage"}),
		ruleHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_hits_total",
			Help:      "Times each rule fired.",
		}, []string{"rule"}),
		riskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of clamped risk scores.",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 85, 95, 100},
		}),
		checkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Time taken to score a transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		alertsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Fraud alerts created, by status.",
		}, []string{"status"}),
		alertsReview: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_reviewed_total",
			Help:      "Fraud alert reviews, by resulting status.",
		}, []string{"status"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Admin requests rejected by the rate limiter.",
		}, []string{"limit"}),
	}
}

// ObserveCheck records a completed check.
func (c *Collector) ObserveCheck(result *domain.CheckResult, elapsed time.Duration) {
	c.checks.WithLabelValues(string(result.RiskLevel), strconv.FormatBool(result.ShouldBlock)).Inc()
	c.riskScore.Observe(float64(result.RiskScore))
	c.checkDuration.Observe(elapsed.Seconds())
	for _, rule := range result.RulesTriggered {
		c.ruleHits.WithLabelValues(rule).Inc()
	}
}

// CheckFailed records a check that failed at stage.
func (c *Collector) CheckFailed(stage string) {
	c.checkFailures.WithLabelValues(stage).Inc()
}

// AlertCreated records a new alert.
func (c *Collector) AlertCreated(alert *domain.FraudAlert) {
	c.alertsCreated.WithLabelValues(string(alert.Status)).Inc()
}

// AlertReviewed records a review.
func (c *Collector) AlertReviewed(alert *domain.FraudAlert) {
	c.alertsReview.WithLabelValues(string(alert.Status)).Inc()
}

// RateLimited records a rejected admin request.
func (c *Collector) RateLimited(limit string) {
	c.rateLimited.WithLabelValues(limit).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

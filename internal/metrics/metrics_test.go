package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCheck(t *testing.T) {
	c := NewCollector()

	c.ObserveCheck(&domain.CheckResult{
		RiskScore:      96,
		RiskLevel:      domain.RiskCritical,
		ShouldBlock:    true,
		RulesTriggered: []string{domain.RuleAmountExceedsLimit, domain.RuleRoundAmountPattern},
	}, 15*time.Millisecond)
	c.ObserveCheck(&domain.CheckResult{
		RiskScore:      5,
		RiskLevel:      domain.RiskLow,
		RulesTriggered: []string{domain.RuleRoundAmountPattern},
	}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.checks.WithLabelValues("critical", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checks.WithLabelValues("low", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ruleHits.WithLabelValues(domain.RuleRoundAmountPattern)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ruleHits.WithLabelValues(domain.RuleAmountExceedsLimit)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.riskScore))
}

func TestFailuresAndAlerts(t *testing.T) {
	c := NewCollector()

	c.CheckFailed("rules")
	c.CheckFailed("rules")
	c.AlertCreated(&domain.FraudAlert{Status: domain.AlertBlocked})
	c.AlertReviewed(&domain.FraudAlert{Status: domain.AlertApproved})
	c.RateLimited("stats")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.checkFailures.WithLabelValues("rules")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsCreated.WithLabelValues("blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsReview.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rateLimited.WithLabelValues("stats")))
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.CheckFailed("config")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `kestrel_check_failures_total{stage="config"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

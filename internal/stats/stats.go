// Package stats summarises fraud alerts over a reporting window.
package stats

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// DefaultWindowDays applies when a non-positive window is requested.
	DefaultWindowDays = 30

	topRulesLimit = 5
)

// AlertSource lists the alerts created since a point in time.
type AlertSource interface {
	ListAlertsSince(ctx context.Context, merchantID string, since time.Time) ([]*domain.FraudAlert, error)
}

// Report is FraudStats plus the window it was computed over.
type Report struct {
	domain.FraudStats
	PeriodDays int    `json:"periodDays"`
	MerchantID string `json:"merchantId,omitempty"`
}

// Service computes reports from an alert source.
type Service struct {
	source AlertSource
	now    func() time.Time
}

// NewService creates a stats service.
func NewService(source AlertSource) *Service {
	return &Service{source: source, now: time.Now}
}

// GetStats aggregates the alerts of the last windowDays days. An empty
// merchantID covers every merchant.
func (s *Service) GetStats(ctx context.Context, merchantID string, windowDays int) (*Report, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	since := s.now().AddDate(0, 0, -windowDays)
	alerts, err := s.source.ListAlertsSince(ctx, merchantID, since)
	if err != nil {
		return nil, domain.NewDependencyError("list alerts for stats", err)
	}

	return &Report{
		FraudStats: Aggregate(alerts),
		PeriodDays: windowDays,
		MerchantID: merchantID,
	}, nil
}

// Aggregate computes the stats of a set of alerts. Top rules are ordered by
// count, ties keeping the order in which rules were first seen.
func Aggregate(alerts []*domain.FraudAlert) domain.FraudStats {
	st := domain.FraudStats{
		TopTriggeredRules: []domain.RuleCount{},
		TotalAmount:       decimal.Zero,
		BlockedAmount:     decimal.Zero,
	}

	counts := make(map[string]int)
	var order []string
	scoreSum := 0

	for _, a := range alerts {
		st.TotalAlerts++
		scoreSum += a.RiskScore
		st.TotalAmount = st.TotalAmount.Add(a.Amount)

		switch a.Status {
		case domain.AlertBlocked:
			st.BlockedTransactions++
			st.BlockedAmount = st.BlockedAmount.Add(a.Amount)
		case domain.AlertPending:
			st.PendingReviews++
		}

		switch a.RiskLevel {
		case domain.RiskLow:
			st.RiskLevelBreakdown.Low++
		case domain.RiskMedium:
			st.RiskLevelBreakdown.Medium++
		case domain.RiskHigh:
			st.RiskLevelBreakdown.High++
		case domain.RiskCritical:
			st.RiskLevelBreakdown.Critical++
		}

		for _, rule := range a.RulesTriggered {
			if _, seen := counts[rule]; !seen {
				order = append(order, rule)
			}
			counts[rule]++
		}
	}

	if st.TotalAlerts > 0 {
		avg := float64(scoreSum) / float64(st.TotalAlerts)
		st.AverageRiskScore = math.Round(avg*100) / 100
	}

	for _, rule := range order {
		st.TopTriggeredRules = append(st.TopTriggeredRules, domain.RuleCount{Rule: rule, Count: counts[rule]})
	}
	sort.SliceStable(st.TopTriggeredRules, func(i, j int) bool {
		return st.TopTriggeredRules[i].Count > st.TopTriggeredRules[j].Count
	})
	if len(st.TopTriggeredRules) > topRulesLimit {
		st.TopTriggeredRules = st.TopTriggeredRules[:topRulesLimit]
	}

	return st
}

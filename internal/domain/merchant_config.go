package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MerchantRiskConfig holds the per-merchant limits and thresholds the
// scoring engine evaluates against.
type MerchantRiskConfig struct {
	MerchantID string `json:"merchantId"`

	// Risk level thresholds, inclusive lower bounds on the 0-100 score
	LowRiskThreshold      int `json:"lowRiskThreshold"`
	MediumRiskThreshold   int `json:"mediumRiskThreshold"`
	HighRiskThreshold     int `json:"highRiskThreshold"`
	CriticalRiskThreshold int `json:"criticalRiskThreshold"`

	MaxTransactionAmount     decimal.Decimal `json:"maxTransactionAmount"`
	DailyLimit               decimal.Decimal `json:"dailyLimit"`
	MaxTransactionsPerHour   int             `json:"maxTransactionsPerHour"`
	MaxTransactionsPerDay    int             `json:"maxTransactionsPerDay"`
	MaxSameAmountInHour      int             `json:"maxSameAmountInHour"`
	MaxFailedAttemptsPerHour int             `json:"maxFailedAttemptsPerHour"`

	AutoBlockHighRisk bool `json:"autoBlockHighRisk"`
	AutoBlockCritical bool `json:"autoBlockCritical"`

	// RequireManualReview is stored for operators; the decision does not read it.
	RequireManualReview bool `json:"requireManualReview"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultMerchantRiskConfig returns the config a merchant gets on first use.
func DefaultMerchantRiskConfig(merchantID string) *MerchantRiskConfig {
	return &MerchantRiskConfig{
		MerchantID:               merchantID,
		LowRiskThreshold:         50,
		MediumRiskThreshold:      70,
		HighRiskThreshold:        85,
		CriticalRiskThreshold:    95,
		MaxTransactionAmount:     decimal.NewFromInt(1000),
		DailyLimit:               decimal.NewFromInt(5000),
		MaxTransactionsPerHour:   10,
		MaxTransactionsPerDay:    50,
		MaxSameAmountInHour:      3,
		MaxFailedAttemptsPerHour: 5,
		AutoBlockHighRisk:        true,
		AutoBlockCritical:        true,
		RequireManualReview:      false,
	}
}

// Classify maps a clamped score to a risk level, checking the highest
// threshold first.
func (c *MerchantRiskConfig) Classify(score int) RiskLevel {
	switch {
	case score >= c.CriticalRiskThreshold:
		return RiskCritical
	case score >= c.HighRiskThreshold:
		return RiskHigh
	case score >= c.MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// MerchantRiskConfigPatch is a partial update; nil fields are left alone.
type MerchantRiskConfigPatch struct {
	LowRiskThreshold         *int             `json:"lowRiskThreshold,omitempty"`
	MediumRiskThreshold      *int             `json:"mediumRiskThreshold,omitempty"`
	HighRiskThreshold        *int             `json:"highRiskThreshold,omitempty"`
	CriticalRiskThreshold    *int             `json:"criticalRiskThreshold,omitempty"`
	MaxTransactionAmount     *decimal.Decimal `json:"maxTransactionAmount,omitempty"`
	DailyLimit               *decimal.Decimal `json:"dailyLimit,omitempty"`
	MaxTransactionsPerHour   *int             `json:"maxTransactionsPerHour,omitempty"`
	MaxTransactionsPerDay    *int             `json:"maxTransactionsPerDay,omitempty"`
	MaxSameAmountInHour      *int             `json:"maxSameAmountInHour,omitempty"`
	MaxFailedAttemptsPerHour *int             `json:"maxFailedAttemptsPerHour,omitempty"`
	AutoBlockHighRisk        *bool            `json:"autoBlockHighRisk,omitempty"`
	AutoBlockCritical        *bool            `json:"autoBlockCritical,omitempty"`
	RequireManualReview      *bool            `json:"requireManualReview,omitempty"`
}

// Apply copies every non-nil field of p onto c.
func (p *MerchantRiskConfigPatch) Apply(c *MerchantRiskConfig) {
	if p == nil || c == nil {
		return
	}
	setInt(&c.LowRiskThreshold, p.LowRiskThreshold)
	setInt(&c.MediumRiskThreshold, p.MediumRiskThreshold)
	setInt(&c.HighRiskThreshold, p.HighRiskThreshold)
	setInt(&c.CriticalRiskThreshold, p.CriticalRiskThreshold)
	if p.MaxTransactionAmount != nil {
		c.MaxTransactionAmount = *p.MaxTransactionAmount
	}
	if p.DailyLimit != nil {
		c.DailyLimit = *p.DailyLimit
	}
	setInt(&c.MaxTransactionsPerHour, p.MaxTransactionsPerHour)
	setInt(&c.MaxTransactionsPerDay, p.MaxTransactionsPerDay)
	setInt(&c.MaxSameAmountInHour, p.MaxSameAmountInHour)
	setInt(&c.MaxFailedAttemptsPerHour, p.MaxFailedAttemptsPerHour)
	setBool(&c.AutoBlockHighRisk, p.AutoBlockHighRisk)
	setBool(&c.AutoBlockCritical, p.AutoBlockCritical)
	setBool(&c.RequireManualReview, p.RequireManualReview)
}

// Validate checks the ranges accepted from the admin surface.
func (p *MerchantRiskConfigPatch) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: empty config update", ErrValidation)
	}
	thresholds := []struct {
		name string
		v    *int
	}{
		{"lowRiskThreshold", p.LowRiskThreshold},
		{"mediumRiskThreshold", p.MediumRiskThreshold},
		{"highRiskThreshold", p.HighRiskThreshold},
		{"criticalRiskThreshold", p.CriticalRiskThreshold},
	}
	for _, t := range thresholds {
		if t.v != nil && (*t.v < 1 || *t.v > 100) {
			return fmt.Errorf("%w: %s must be between 1 and 100", ErrValidation, t.name)
		}
	}

	amounts := []struct {
		name string
		v    *decimal.Decimal
	}{
		{"maxTransactionAmount", p.MaxTransactionAmount},
		{"dailyLimit", p.DailyLimit},
	}
	for _, a := range amounts {
		if a.v != nil && !a.v.IsPositive() {
			return fmt.Errorf("%w: %s must be greater than 0", ErrValidation, a.name)
		}
	}

	counters := []struct {
		name string
		v    *int
	}{
		{"maxTransactionsPerHour", p.MaxTransactionsPerHour},
		{"maxTransactionsPerDay", p.MaxTransactionsPerDay},
		{"maxSameAmountInHour", p.MaxSameAmountInHour},
		{"maxFailedAttemptsPerHour", p.MaxFailedAttemptsPerHour},
	}
	for _, c := range counters {
		if c.v != nil && *c.v < 1 {
			return fmt.Errorf("%w: %s must be at least 1", ErrValidation, c.name)
		}
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

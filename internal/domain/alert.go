package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the classification of a clamped risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// AlertStatus is the review state of a FraudAlert.
type AlertStatus string

const (
	AlertPending  AlertStatus = "pending"
	AlertApproved AlertStatus = "approved"
	AlertBlocked  AlertStatus = "blocked"
)

// ParseAlertStatus validates a status supplied by a reviewer.
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch st := AlertStatus(s); st {
	case AlertPending, AlertApproved, AlertBlocked:
		return st, nil
	}
	return "", fmt.Errorf("%w: invalid alert status %q", ErrValidation, s)
}

// FraudAlert is the auditable record of a blocked transaction.
// Alerts are never deleted; only a review changes them.
type FraudAlert struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transactionId"`
	MerchantID     string          `json:"merchantId"`
	PayerID        string          `json:"payerId"`
	Amount         decimal.Decimal `json:"amount"`
	RiskScore      int             `json:"riskScore"`
	RiskLevel      RiskLevel       `json:"riskLevel"`
	Status         AlertStatus     `json:"status"`
	RulesTriggered []string        `json:"rulesTriggered"`
	Metadata       Metadata        `json:"metadata,omitempty"`
	ReviewNotes    *string         `json:"reviewNotes,omitempty"`
	ReviewedBy     *string         `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// AlertFilter narrows ListAlerts. Empty fields match everything.
type AlertFilter struct {
	MerchantID string
	Status     AlertStatus
	Limit      int
}

// DefaultAlertLimit applies when AlertFilter.Limit is not positive.
const DefaultAlertLimit = 50

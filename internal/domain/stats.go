package domain

import "github.com/shopspring/decimal"

// FraudStats summarises the alerts of a reporting window.
type FraudStats struct {
	TotalAlerts         int                `json:"totalAlerts"`
	BlockedTransactions int                `json:"blockedTransactions"`
	PendingReviews      int                `json:"pendingReviews"`
	AverageRiskScore    float64            `json:"averageRiskScore"`
	RiskLevelBreakdown  RiskLevelBreakdown `json:"riskLevelBreakdown"`
	TopTriggeredRules   []RuleCount        `json:"topTriggeredRules"`
	TotalAmount         decimal.Decimal    `json:"totalAmount"`
	BlockedAmount       decimal.Decimal    `json:"blockedAmount"`
}

// RiskLevelBreakdown counts alerts per risk level.
type RiskLevelBreakdown struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// RuleCount is a rule identifier and how many alerts it appeared in.
type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

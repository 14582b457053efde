package domain

// Identifiers reported in CheckResult.RulesTriggered.
const (
	RuleAmountExceedsLimit       = "AMOUNT_EXCEEDS_LIMIT"
	RuleAmountUnusualHigh        = "AMOUNT_UNUSUAL_HIGH"
	RuleVelocityHourlyExceeded   = "VELOCITY_HOURLY_EXCEEDED"
	RuleVelocityDailyExceeded    = "VELOCITY_DAILY_EXCEEDED"
	RuleDailyAmountLimitExceeded = "DAILY_AMOUNT_LIMIT_EXCEEDED"
	RuleSameAmountPattern        = "SAME_AMOUNT_PATTERN"
	RuleRoundAmountPattern       = "ROUND_AMOUNT_PATTERN"
	RuleExcessiveFailedAttempts  = "EXCESSIVE_FAILED_ATTEMPTS"
	RuleUnusualTime              = "UNUSUAL_TIME"
	RuleStatisticalAnomaly       = "STATISTICAL_ANOMALY"
)

// RuleOutcome is what a single evaluator contributes to the composite score.
type RuleOutcome struct {
	Score int      `json:"score"`
	Rules []string `json:"rules,omitempty"`
}

// Add records a fired rule and its points.
func (o *RuleOutcome) Add(rule string, points int) {
	o.Score += points
	o.Rules = append(o.Rules, rule)
}

// Decision is the classification of a clamped score for one merchant.
type Decision struct {
	RiskScore      int       `json:"riskScore"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	ShouldBlock    bool      `json:"shouldBlock"`
	RequiresReview bool      `json:"requiresReview"`
}

// CheckResult is returned to the payment pipeline for every checked payment.
type CheckResult struct {
	RiskScore      int         `json:"riskScore"`
	RiskLevel      RiskLevel   `json:"riskLevel"`
	ShouldBlock    bool        `json:"shouldBlock"`
	RequiresReview bool        `json:"requiresReview"`
	RulesTriggered []string    `json:"rulesTriggered"`
	Alert          *FraudAlert `json:"alert,omitempty"`
}

// ClampScore bounds a raw sum to [0, 100].
func ClampScore(raw int) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return raw
}

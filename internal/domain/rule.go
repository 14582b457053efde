package domain

import "fmt"

// ExpressionRuleConfig defines an operator rule written as a CEL expression.
// When the expression evaluates to true, Score points are added and ID is
// reported as triggered.
//
// The expression sees:
//
//	amount        double
//	payer_id      string
//	merchant_id   string
//	payment_method string
//	status        string
//	hour          int    (engine clock, local)
//	metadata      map(string, dyn)
//	max_amount    double (merchant maxTransactionAmount)
//	daily_limit   double (merchant dailyLimit)
type ExpressionRuleConfig struct {
	ID         string `json:"id"`
	Expression string `json:"expression"`
	Score      int    `json:"score"`
}

// Validate checks the static fields; compilation happens in the engine.
func (c *ExpressionRuleConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrValidation)
	}
	if c.Expression == "" {
		return fmt.Errorf("%w: rule %s has no expression", ErrValidation, c.ID)
	}
	if c.Score < 0 || c.Score > 100 {
		return fmt.Errorf("%w: rule %s score must be between 0 and 100", ErrValidation, c.ID)
	}
	return nil
}

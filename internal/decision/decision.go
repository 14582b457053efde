// Package decision turns evaluator outcomes into a risk classification and
// a block decision.
package decision

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Processor aggregates rule outcomes and applies a merchant's thresholds.
type Processor struct{}

// NewProcessor creates a new decision processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// AggregateResult holds the combined outcome of all evaluators.
type AggregateResult struct {
	// RawScore is the unclamped sum of partial scores
	RawScore int

	// Score is RawScore clamped to [0, 100]
	Score int

	// Rules lists fired identifiers in evaluator order
	Rules []string
}

// Aggregate sums outcomes in order and clamps the result.
func (p *Processor) Aggregate(outcomes []domain.RuleOutcome) AggregateResult {
	agg := AggregateResult{Rules: []string{}}
	for _, o := range outcomes {
		agg.RawScore += o.Score
		agg.Rules = append(agg.Rules, o.Rules...)
	}
	agg.Score = domain.ClampScore(agg.RawScore)
	return agg
}

// Decide classifies a clamped score and decides whether to block.
// Only the auto-block flags drive blocking; RequireManualReview is not read.
func (p *Processor) Decide(score int, cfg *domain.MerchantRiskConfig) domain.Decision {
	level := cfg.Classify(score)

	block := (level == domain.RiskCritical && cfg.AutoBlockCritical) ||
		(level == domain.RiskHigh && cfg.AutoBlockHighRisk)

	return domain.Decision{
		RiskScore:      score,
		RiskLevel:      level,
		ShouldBlock:    block,
		RequiresReview: block,
	}
}

// Result builds the CheckResult for an aggregate and its decision.
func (p *Processor) Result(agg AggregateResult, d domain.Decision) *domain.CheckResult {
	return &domain.CheckResult{
		RiskScore:      d.RiskScore,
		RiskLevel:      d.RiskLevel,
		ShouldBlock:    d.ShouldBlock,
		RequiresReview: d.RequiresReview,
		RulesTriggered: agg.Rules,
	}
}

package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ExpressionRule is an operator-defined evaluator backed by a compiled CEL
// program. It adds Score points when the expression is true.
type ExpressionRule struct {
	Config  domain.ExpressionRuleConfig
	Program cel.Program
	Now     Clock
}

// NewExpressionEnv creates the CEL environment expression rules compile in.
func NewExpressionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("payer_id", cel.StringType),
		cel.Variable("merchant_id", cel.StringType),
		cel.Variable("payment_method", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("max_amount", cel.DoubleType),
		cel.Variable("daily_limit", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// CompileExpressionRules validates and compiles every config. The first
// failure aborts with the offending rule id.
func CompileExpressionRules(env *cel.Env, configs []domain.ExpressionRuleConfig, now Clock) ([]*ExpressionRule, error) {
	out := make([]*ExpressionRule, 0, len(configs))
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %s", domain.ErrValidation, cfg.ID)
		}
		seen[cfg.ID] = true

		rule, err := compileExpressionRule(env, cfg, now)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func compileExpressionRule(env *cel.Env, cfg domain.ExpressionRuleConfig, now Clock) (*ExpressionRule, error) {
	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	if now == nil {
		now = time.Now
	}
	return &ExpressionRule{Config: cfg, Program: program, Now: now}, nil
}

func (r *ExpressionRule) Name() string { return r.Config.ID }

// Evaluate runs the program against the transaction. A runtime error, such
// as a missing metadata key, is logged and counts as not firing.
func (r *ExpressionRule) Evaluate(ctx context.Context, tx *domain.Transaction, cfg *domain.MerchantRiskConfig, _ domain.TransactionHistory) (domain.RuleOutcome, error) {
	var out domain.RuleOutcome

	activation := map[string]any{
		"amount":         tx.Amount.InexactFloat64(),
		"payer_id":       tx.PayerID,
		"merchant_id":    tx.MerchantID,
		"payment_method": tx.PaymentMethod,
		"status":         string(tx.Status),
		"hour":           int64(r.Now().Hour()),
		"metadata":       tx.Metadata.Native(),
		"max_amount":     cfg.MaxTransactionAmount.InexactFloat64(),
		"daily_limit":    cfg.DailyLimit.InexactFloat64(),
	}

	val, _, err := r.Program.ContextEval(ctx, activation)
	if err != nil {
		slog.Warn("expression rule evaluation failed",
			"rule_id", r.Config.ID,
			"merchant_id", tx.MerchantID,
			"error", err,
		)
		return out, nil
	}

	if fired, ok := val.(types.Bool); ok && bool(fired) {
		out.Add(r.Config.ID, r.Config.Score)
	}
	return out, nil
}

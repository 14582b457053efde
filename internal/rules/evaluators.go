package rules

import (
	"context"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// RuleEvaluator scores one aspect of a transaction. Evaluators only read
// history; a returned error fails the whole check.
type RuleEvaluator interface {
	Name() string
	Evaluate(ctx context.Context, tx *domain.Transaction, cfg *domain.MerchantRiskConfig, history domain.TransactionHistory) (domain.RuleOutcome, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Points awarded by the built-in evaluators.
const (
	PointsAmountExceedsLimit       = 50
	PointsAmountUnusualHigh        = 40
	PointsVelocityHourly           = 40
	PointsVelocityDaily            = 35
	PointsDailyAmountLimitExceeded = 30
	PointsSameAmountPattern        = 15
	PointsRoundAmountPattern       = 5
	PointsExcessiveFailedAttempts  = 20
	PointsUnusualTime              = 5
	PointsStatisticalAnomaly       = 10
)

var (
	unusualMultiplier = decimal.NewFromInt(5)
	hundred           = decimal.NewFromInt(100)
	roundAmountFloor  = decimal.NewFromInt(500)
)

// DefaultEvaluators returns the six built-in evaluators in scoring order.
func DefaultEvaluators(now Clock) []RuleEvaluator {
	if now == nil {
		now = time.Now
	}
	return []RuleEvaluator{
		&AmountRule{},
		&VelocityRule{Now: now},
		&PatternRule{Now: now},
		&FailedAttemptsRule{Now: now},
		&TimeAnomalyRule{Now: now},
		&StatisticalRule{},
	}
}

// AmountRule flags amounts over the merchant limit or far above the
// merchant's successful average.
type AmountRule struct{}

func (r *AmountRule) Name() string { return "amount" }

func (r *AmountRule) Evaluate(ctx context.Context, tx *domain.Transaction, cfg *domain.MerchantRiskConfig, history domain.TransactionHistory) (domain.RuleOutcome, error) {
	var out domain.RuleOutcome

	if tx.Amount.GreaterThan(cfg.MaxTransactionAmount) {
		out.Add(domain.RuleAmountExceedsLimit, PointsAmountExceedsLimit)
	}

	avg, err := history.AverageSuccessfulAmountByMerchant(ctx, tx.MerchantID)
	if err != nil {
		return domain.RuleOutcome{}, err
	}
	if avg.Valid && !avg.Decimal.IsZero() && tx.Amount.GreaterThan(avg.Decimal.Mul(unusualMultiplier)) {
		out.Add(domain.RuleAmountUnusualHigh, PointsAmountUnusualHigh)
	}

	return out, nil
}

// VelocityRule flags payers transacting too often or too much.
// The counts are read without locking, so concurrent payments from one
// payer may each see a count that excludes the others.
type VelocityRule struct {
	Now Clock
}

func (r *VelocityRule) Name() string { return "velocity" }

func (r *VelocityRule) Evaluate(ctx context.Context, tx *domain.Transaction, cfg *domain.MerchantRiskConfig, history domain.TransactionHistory) (domain.RuleOutcome, error) {
	var out domain.RuleOutcome
	now := r.Now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	hourly, err := history.CountByPayerSince(ctx, tx.PayerID, hourAgo)
	if err != nil {
		return domain.RuleOutcome{}, err
	}
	if hourly >= cfg.MaxTransactionsPerHour {
		out.Add(domain.RuleVelocityHourlyExceeded, PointsVelocityHourly)
	}

	daily, err := history.CountByPayerSince(ctx, tx.PayerID, dayAgo)
	if err != nil {
		return domain.RuleOutcome{}, err
	}
	if daily >= cfg.MaxTransactionsPerDay {
		out.Add(domain.RuleVelocityDailyExceeded, PointsVelocityDaily)
	}

	sum, err := history.SumAmountByPayerSince(ctx, tx.PayerID, dayAgo)
	if err != nil {
		return domain.RuleOutcome{}, err
	}
	// A payer with no 24h history still gets the daily check; NULL counts as 0.
	spent := decimal.Zero
	if sum.Valid {
		spent = sum.Decimal
	}
	if spent.Add(tx.Amount).GreaterThan(cfg.DailyLimit) {
		out.Add(domain.RuleDailyAmountLimitExceeded, PointsDailyAmountLimitExceeded)
	}

	return out, nil
}

// PatternRule flags repeated identical amounts and large round amounts.
type PatternRule struct {
	Now Clock
}

func (r *PatternRule) Name() string { return "pattern" }

func (r *PatternRule) Evaluate(ctx context.Context, tx *domain.Transaction, cfg *domain.MerchantRiskConfig, history domain.TransactionHistory) (domain.RuleOutcome, error) {
	var out domain.RuleOutcome

	same, err := history.CountByPayerAmountSince(ctx, tx.PayerID, tx.Amount, r.Now().Add(-time.Hour))
	if err != nil {
		return domain.RuleOutcome{}, err
	}
	if same >= cfg.MaxSameAmountInHour {
		out.Add(domain.RuleSameAmountPattern, PointsSameAmountPattern)
	}

	if tx.Amount.Mod(hundred).IsZero() && tx.Amount.GreaterThanOrEqual(roundAmountFloor) {
		out.Add(domain.RuleRoundAmountPattern, PointsRoundAmountPattern)
	}

	return out, nil
}

// FailedAttemptsRule flags payers with many failed payments in the last hour.
type FailedAttemptsRule struct {
	Now Clock
}

func (r *FailedAttemptsRule) Name() string { return "failed_attempts" }

func (r *FailedAttemptsRule) Evaluate(ctx context.Context, tx *domain.Transaction, cfg *domain.MerchantRiskConfig, history domain.TransactionHistory) (domain.RuleOutcome, error) {
	var out domain.RuleOutcome

	failed, err := history.CountByPayerStatusSince(ctx, tx.PayerID, domain.TransactionFailed, r.Now().Add(-time.Hour))
	if err != nil {
		return domain.RuleOutcome{}, err
	}
	if failed >= cfg.MaxFailedAttemptsPerHour {
		out.Add(domain.RuleExcessiveFailedAttempts, PointsExcessiveFailedAttempts)
	}

	return out, nil
}

// TimeAnomalyRule flags payments made between 02:00 and 06:59 local time.
type TimeAnomalyRule struct {
	Now Clock

	// Location overrides the clock's zone when set.
	Location *time.Location
}

func (r *TimeAnomalyRule) Name() string { return "time_anomaly" }

func (r *TimeAnomalyRule) Evaluate(_ context.Context, _ *domain.Transaction, _ *domain.MerchantRiskConfig, _ domain.TransactionHistory) (domain.RuleOutcome, error) {
	var out domain.RuleOutcome

	now := r.Now()
	if r.Location != nil {
		now = now.In(r.Location)
	}
	if h := now.Hour(); h >= 2 && h <= 6 {
		out.Add(domain.RuleUnusualTime, PointsUnusualTime)
	}

	return out, nil
}

// Statistical cut-offs: sample size, minimum sample and deviation multiple.
const (
	statisticalSampleSize = 100
	statisticalMinSample  = 11
	statisticalSigmas     = 2.0
)

// StatisticalRule flags amounts more than two population standard
// deviations from the mean of the merchant's recent transactions.
type StatisticalRule struct{}

func (r *StatisticalRule) Name() string { return "statistical" }

func (r *StatisticalRule) Evaluate(ctx context.Context, tx *domain.Transaction, _ *domain.MerchantRiskConfig, history domain.TransactionHistory) (domain.RuleOutcome, error) {
	var out domain.RuleOutcome

	amounts, err := history.RecentByMerchant(ctx, tx.MerchantID, statisticalSampleSize)
	if err != nil {
		return domain.RuleOutcome{}, err
	}
	if len(amounts) < statisticalMinSample {
		return out, nil
	}

	mean, stddev := meanStdDev(amounts)
	if math.Abs(tx.Amount.InexactFloat64()-mean) > statisticalSigmas*stddev {
		out.Add(domain.RuleStatisticalAnomaly, PointsStatisticalAnomaly)
	}

	return out, nil
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(amounts []decimal.Decimal) (float64, float64) {
	n := decimal.NewFromInt(int64(len(amounts)))
	mean := decimal.Sum(decimal.Zero, amounts...).Div(n).InexactFloat64()

	var sq float64
	for _, a := range amounts {
		d := a.InexactFloat64() - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(amounts)))
}

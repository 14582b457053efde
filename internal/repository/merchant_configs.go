package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const configColumns = `
	merchant_id, low_risk_threshold, medium_risk_threshold, high_risk_threshold,
	critical_risk_threshold, max_transaction_amount, daily_limit,
	max_transactions_per_hour, max_transactions_per_day, max_same_amount_in_hour,
	max_failed_attempts_per_hour, auto_block_high_risk, auto_block_critical,
	require_manual_review, created_at, updated_at
`

// GetOrCreateMerchantConfig returns the merchant's config, inserting the
// defaults on first use. Two callers racing on the insert both end up with
// the row that won.
func (r *SQLRepository) GetOrCreateMerchantConfig(ctx context.Context, merchantID string) (*domain.MerchantRiskConfig, error) {
	cfg, err := r.getMerchantConfig(ctx, merchantID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	cfg = domain.DefaultMerchantRiskConfig(merchantID)
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	query := `INSERT INTO merchant_risk_configs (` + configColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, r.rebind(query), configArgs(cfg)...)
	if isUniqueViolation(err) {
		return r.getMerchantConfig(ctx, merchantID)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveMerchantConfig upserts the full config row.
func (r *SQLRepository) SaveMerchantConfig(ctx context.Context, cfg *domain.MerchantRiskConfig) error {
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	query := `INSERT INTO merchant_risk_configs (` + configColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(merchant_id) DO UPDATE SET
			low_risk_threshold = excluded.low_risk_threshold,
			medium_risk_threshold = excluded.medium_risk_threshold,
			high_risk_threshold = excluded.high_risk_threshold,
			critical_risk_threshold = excluded.critical_risk_threshold,
			max_transaction_amount = excluded.max_transaction_amount,
			daily_limit = excluded.daily_limit,
			max_transactions_per_hour = excluded.max_transactions_per_hour,
			max_transactions_per_day = excluded.max_transactions_per_day,
			max_same_amount_in_hour = excluded.max_same_amount_in_hour,
			max_failed_attempts_per_hour = excluded.max_failed_attempts_per_hour,
			auto_block_high_risk = excluded.auto_block_high_risk,
			auto_block_critical = excluded.auto_block_critical,
			require_manual_review = excluded.require_manual_review,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), configArgs(cfg)...)
	return err
}

func (r *SQLRepository) getMerchantConfig(ctx context.Context, merchantID string) (*domain.MerchantRiskConfig, error) {
	query := `SELECT ` + configColumns + ` FROM merchant_risk_configs WHERE merchant_id = ?`

	var c domain.MerchantRiskConfig
	var blockHigh, blockCritical, manualReview int

	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID).Scan(
		&c.MerchantID, &c.LowRiskThreshold, &c.MediumRiskThreshold, &c.HighRiskThreshold,
		&c.CriticalRiskThreshold, &c.MaxTransactionAmount, &c.DailyLimit,
		&c.MaxTransactionsPerHour, &c.MaxTransactionsPerDay, &c.MaxSameAmountInHour,
		&c.MaxFailedAttemptsPerHour, &blockHigh, &blockCritical,
		&manualReview, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.AutoBlockHighRisk = blockHigh == 1
	c.AutoBlockCritical = blockCritical == 1
	c.RequireManualReview = manualReview == 1
	return &c, nil
}

func configArgs(c *domain.MerchantRiskConfig) []any {
	return []any{
		c.MerchantID, c.LowRiskThreshold, c.MediumRiskThreshold, c.HighRiskThreshold,
		c.CriticalRiskThreshold, c.MaxTransactionAmount, c.DailyLimit,
		c.MaxTransactionsPerHour, c.MaxTransactionsPerDay, c.MaxSameAmountInHour,
		c.MaxFailedAttemptsPerHour, boolToInt(c.AutoBlockHighRisk), boolToInt(c.AutoBlockCritical),
		boolToInt(c.RequireManualReview), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	}
}

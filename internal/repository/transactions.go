package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// SaveTransaction records a payment attempt in history.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}

	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.Status == "" {
		tx.Status = domain.TransactionPending
	}

	query := `
		INSERT INTO transactions (
			id, merchant_id, payer_id, amount, status, payment_method,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.MerchantID, tx.PayerID, tx.Amount,
		string(tx.Status), tx.PaymentMethod,
		tx.Metadata, tx.CreatedAt.UTC(), now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s already exists", domain.ErrValidation, tx.ID)
	}
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, merchant_id, payer_id, amount, status, payment_method,
			   metadata, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var status string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.MerchantID, &tx.PayerID, &tx.Amount,
		&status, &tx.PaymentMethod,
		&tx.Metadata, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Status = domain.TransactionStatus(status)
	return &tx, nil
}

// UpdateTransactionStatus moves a transaction to a settlement status.
func (r *SQLRepository) UpdateTransactionStatus(ctx context.Context, txID string, status domain.TransactionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}

	query := `UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(status), time.Now().UTC(), txID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountByPayerSince counts the payer's transactions in the window.
func (r *SQLRepository) CountByPayerSince(ctx context.Context, payerID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE payer_id = ? AND created_at >= ?`
	return r.count(ctx, query, payerID, since.UTC())
}

// CountByPayerAmountSince counts the payer's transactions of exactly amount.
func (r *SQLRepository) CountByPayerAmountSince(ctx context.Context, payerID string, amount decimal.Decimal, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE payer_id = ? AND amount = ? AND created_at >= ?`
	return r.count(ctx, query, payerID, amount, since.UTC())
}

// CountByPayerStatusSince counts the payer's transactions in status.
func (r *SQLRepository) CountByPayerStatusSince(ctx context.Context, payerID string, status domain.TransactionStatus, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE payer_id = ? AND status = ? AND created_at >= ?`
	return r.count(ctx, query, payerID, string(status), since.UTC())
}

// SumAmountByPayerSince sums the payer's amounts in the window.
func (r *SQLRepository) SumAmountByPayerSince(ctx context.Context, payerID string, since time.Time) (decimal.NullDecimal, error) {
	query := `SELECT SUM(amount) FROM transactions WHERE payer_id = ? AND created_at >= ?`

	var sum decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, r.rebind(query), payerID, since.UTC()).Scan(&sum)
	return sum, err
}

// AverageSuccessfulAmountByMerchant averages all successful amounts.
func (r *SQLRepository) AverageSuccessfulAmountByMerchant(ctx context.Context, merchantID string) (decimal.NullDecimal, error) {
	query := `SELECT AVG(amount) FROM transactions WHERE merchant_id = ? AND status = ?`

	var avg decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, r.rebind(query), merchantID, string(domain.TransactionSuccess)).Scan(&avg)
	return avg, err
}

// RecentByMerchant returns the amounts of the merchant's newest transactions.
func (r *SQLRepository) RecentByMerchant(ctx context.Context, merchantID string, limit int) ([]decimal.Decimal, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT amount
		FROM transactions
		WHERE merchant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), merchantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	amounts := make([]decimal.Decimal, 0, limit)
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}

	return amounts, rows.Err()
}

func (r *SQLRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

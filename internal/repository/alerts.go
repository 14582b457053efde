package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const alertColumns = `
	id, transaction_id, merchant_id, payer_id, amount, risk_score, risk_level,
	status, rules_triggered, metadata, review_notes, reviewed_by, reviewed_at,
	created_at, updated_at
`

// SaveAlert inserts a new alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.FraudAlert) error {
	rules, err := json.Marshal(nonNil(alert.RulesTriggered))
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	query := `INSERT INTO fraud_alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.TransactionID, alert.MerchantID, alert.PayerID,
		alert.Amount, alert.RiskScore, string(alert.RiskLevel),
		string(alert.Status), string(rules), alert.Metadata,
		nullString(alert.ReviewNotes), nullString(alert.ReviewedBy), nullTime(alert.ReviewedAt),
		alert.CreatedAt.UTC(), alert.UpdatedAt.UTC(),
	)
	return err
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.FraudAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM fraud_alerts WHERE id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return alert, err
}

// UpdateAlert persists the review fields of an alert.
func (r *SQLRepository) UpdateAlert(ctx context.Context, alert *domain.FraudAlert) error {
	query := `
		UPDATE fraud_alerts
		SET status = ?, review_notes = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(alert.Status),
		nullString(alert.ReviewNotes), nullString(alert.ReviewedBy), nullTime(alert.ReviewedAt),
		alert.UpdatedAt.UTC(), alert.ID,
	)
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

// ListAlerts returns alerts newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.FraudAlert, error) {
	var where []string
	var args []any

	if filter.MerchantID != "" {
		where = append(where, "merchant_id = ?")
		args = append(args, filter.MerchantID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = domain.DefaultAlertLimit
	}

	query := `SELECT ` + alertColumns + ` FROM fraud_alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	return r.queryAlerts(ctx, query, args...)
}

// ListAlertsSince returns alerts created in the window, oldest first.
func (r *SQLRepository) ListAlertsSince(ctx context.Context, merchantID string, since time.Time) ([]*domain.FraudAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM fraud_alerts WHERE created_at >= ?`
	args := []any{since.UTC()}
	if merchantID != "" {
		query += ` AND merchant_id = ?`
		args = append(args, merchantID)
	}
	query += ` ORDER BY created_at ASC`

	return r.queryAlerts(ctx, query, args...)
}

func (r *SQLRepository) queryAlerts(ctx context.Context, query string, args ...any) ([]*domain.FraudAlert, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []*domain.FraudAlert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.FraudAlert, error) {
	var a domain.FraudAlert
	var level, status, rules string
	var notes, reviewer sql.NullString
	var reviewedAt sql.NullTime

	if err := row.Scan(
		&a.ID, &a.TransactionID, &a.MerchantID, &a.PayerID,
		&a.Amount, &a.RiskScore, &level,
		&status, &rules, &a.Metadata,
		&notes, &reviewer, &reviewedAt,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	a.RiskLevel = domain.RiskLevel(level)
	a.Status = domain.AlertStatus(status)
	if err := json.Unmarshal([]byte(rules), &a.RulesTriggered); err != nil {
		return nil, fmt.Errorf("failed to parse rules for alert %s: %w", a.ID, err)
	}
	if notes.Valid {
		a.ReviewNotes = &notes.String
	}
	if reviewer.Valid {
		a.ReviewedBy = &reviewer.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.ReviewedAt = &t
	}

	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

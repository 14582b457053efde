// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionHistory answers the aggregate questions the rule evaluators ask
// about past transactions. Velocity counts filter by payer across merchants.
type TransactionHistory interface {
	// CountByPayerSince counts the payer's transactions created at or after since.
	CountByPayerSince(ctx context.Context, payerID string, since time.Time) (int, error)

	// CountByPayerAmountSince counts the payer's transactions of exactly amount.
	CountByPayerAmountSince(ctx context.Context, payerID string, amount decimal.Decimal, since time.Time) (int, error)

	// CountByPayerStatusSince counts the payer's transactions in status.
	CountByPayerStatusSince(ctx context.Context, payerID string, status TransactionStatus, since time.Time) (int, error)

	// SumAmountByPayerSince sums the payer's amounts; Valid is false when
	// there are no rows.
	SumAmountByPayerSince(ctx context.Context, payerID string, since time.Time) (decimal.NullDecimal, error)

	// AverageSuccessfulAmountByMerchant averages the merchant's successful
	// amounts over all time; Valid is false when there are none.
	AverageSuccessfulAmountByMerchant(ctx context.Context, merchantID string) (decimal.NullDecimal, error)

	// RecentByMerchant returns up to limit amounts of the merchant's newest
	// transactions, any status.
	RecentByMerchant(ctx context.Context, merchantID string, limit int) ([]decimal.Decimal, error)
}

// TransactionStore is the write path of the payment pipeline.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, txID string, status TransactionStatus) error
}

// AlertStore persists fraud alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *FraudAlert) error
	GetAlert(ctx context.Context, alertID string) (*FraudAlert, error)
	UpdateAlert(ctx context.Context, alert *FraudAlert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*FraudAlert, error)

	// ListAlertsSince returns alerts created at or after since, optionally
	// scoped to one merchant.
	ListAlertsSince(ctx context.Context, merchantID string, since time.Time) ([]*FraudAlert, error)
}

// ConfigStore persists merchant risk configs.
type ConfigStore interface {
	// GetOrCreateMerchantConfig returns the stored config, inserting the
	// defaults when none exists.
	GetOrCreateMerchantConfig(ctx context.Context, merchantID string) (*MerchantRiskConfig, error)
	SaveMerchantConfig(ctx context.Context, cfg *MerchantRiskConfig) error
}

// Repository is the full persistence surface implemented by the SQL backends.
type Repository interface {
	TransactionHistory
	TransactionStore
	AlertStore
	ConfigStore

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

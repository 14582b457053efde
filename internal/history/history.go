// Package history bounds and wraps the transaction history queries the rule
// evaluators issue for every checked payment.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	defaultQueryTimeout  = 2 * time.Second
	defaultRecentTimeout = 3 * time.Second
)

// Service implements domain.TransactionHistory on top of a store, running
// each query under its own deadline and reporting failures as
// *domain.DependencyError.
type Service struct {
	store         domain.TransactionHistory
	queryTimeout  time.Duration
	recentTimeout time.Duration
}

var _ domain.TransactionHistory = (*Service)(nil)

// NewService creates a history service. Zero timeouts fall back to 2s for
// aggregate queries and 3s for the recent-transactions query.
func NewService(store domain.TransactionHistory, cfg domain.HistoryConfig) *Service {
	s := &Service{
		store:         store,
		queryTimeout:  cfg.QueryTimeout,
		recentTimeout: cfg.RecentTimeout,
	}
	if s.queryTimeout <= 0 {
		s.queryTimeout = defaultQueryTimeout
	}
	if s.recentTimeout <= 0 {
		s.recentTimeout = defaultRecentTimeout
	}
	return s
}

// CountByPayerSince returns the number of payer transactions in the window.
func (s *Service) CountByPayerSince(ctx context.Context, payerID string, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	n, err := s.store.CountByPayerSince(ctx, payerID, since)
	if err != nil {
		return 0, wrap("count payer transactions", err)
	}
	return n, nil
}

// CountByPayerAmountSince returns the number of payer transactions of exactly amount.
func (s *Service) CountByPayerAmountSince(ctx context.Context, payerID string, amount decimal.Decimal, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	n, err := s.store.CountByPayerAmountSince(ctx, payerID, amount, since)
	if err != nil {
		return 0, wrap("count payer same-amount transactions", err)
	}
	return n, nil
}

// CountByPayerStatusSince returns the number of payer transactions in status.
func (s *Service) CountByPayerStatusSince(ctx context.Context, payerID string, status domain.TransactionStatus, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	n, err := s.store.CountByPayerStatusSince(ctx, payerID, status, since)
	if err != nil {
		return 0, wrap(fmt.Sprintf("count payer %s transactions", status), err)
	}
	return n, nil
}

// SumAmountByPayerSince sums the payer's amounts in the window.
func (s *Service) SumAmountByPayerSince(ctx context.Context, payerID string, since time.Time) (decimal.NullDecimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	sum, err := s.store.SumAmountByPayerSince(ctx, payerID, since)
	if err != nil {
		return decimal.NullDecimal{}, wrap("sum payer amounts", err)
	}
	return sum, nil
}

// AverageSuccessfulAmountByMerchant averages the merchant's successful amounts.
func (s *Service) AverageSuccessfulAmountByMerchant(ctx context.Context, merchantID string) (decimal.NullDecimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	avg, err := s.store.AverageSuccessfulAmountByMerchant(ctx, merchantID)
	if err != nil {
		return decimal.NullDecimal{}, wrap("average merchant amount", err)
	}
	return avg, nil
}

// RecentByMerchant returns the amounts of the merchant's newest transactions.
func (s *Service) RecentByMerchant(ctx context.Context, merchantID string, limit int) ([]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.recentTimeout)
	defer cancel()

	amounts, err := s.store.RecentByMerchant(ctx, merchantID, limit)
	if err != nil {
		return nil, wrap("recent merchant transactions", err)
	}
	return amounts, nil
}

func wrap(op string, err error) error {
	return domain.NewDependencyError("history: "+op, err)
}

package rules

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// memHistory answers history queries from an in-memory slice.
type memHistory struct {
	mu  sync.Mutex
	txs []domain.Transaction
	err error
}

func (h *memHistory) add(tx domain.Transaction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.txs = append(h.txs, tx)
}

func (h *memHistory) filter(keep func(domain.Transaction) bool) []domain.Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range h.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func (h *memHistory) CountByPayerSince(_ context.Context, payerID string, since time.Time) (int, error) {
	if h.err != nil {
		return 0, h.err
	}
	return len(h.filter(func(tx domain.Transaction) bool {
		return tx.PayerID == payerID && !tx.CreatedAt.Before(since)
	})), nil
}

func (h *memHistory) CountByPayerAmountSince(_ context.Context, payerID string, amount decimal.Decimal, since time.Time) (int, error) {
	if h.err != nil {
		return 0, h.err
	}
	return len(h.filter(func(tx domain.Transaction) bool {
		return tx.PayerID == payerID && tx.Amount.Equal(amount) && !tx.CreatedAt.Before(since)
	})), nil
}

func (h *memHistory) CountByPayerStatusSince(_ context.Context, payerID string, status domain.TransactionStatus, since time.Time) (int, error) {
	if h.err != nil {
		return 0, h.err
	}
	return len(h.filter(func(tx domain.Transaction) bool {
		return tx.PayerID == payerID && tx.Status == status && !tx.CreatedAt.Before(since)
	})), nil
}

func (h *memHistory) SumAmountByPayerSince(_ context.Context, payerID string, since time.Time) (decimal.NullDecimal, error) {
	if h.err != nil {
		return decimal.NullDecimal{}, h.err
	}
	txs := h.filter(func(tx domain.Transaction) bool {
		return tx.PayerID == payerID && !tx.CreatedAt.Before(since)
	})
	if len(txs) == 0 {
		return decimal.NullDecimal{}, nil
	}
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	return decimal.NewNullDecimal(sum), nil
}

func (h *memHistory) AverageSuccessfulAmountByMerchant(_ context.Context, merchantID string) (decimal.NullDecimal, error) {
	if h.err != nil {
		return decimal.NullDecimal{}, h.err
	}
	txs := h.filter(func(tx domain.Transaction) bool {
		return tx.MerchantID == merchantID && tx.Status == domain.TransactionSuccess
	})
	if len(txs) == 0 {
		return decimal.NullDecimal{}, nil
	}
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	return decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(int64(len(txs))))), nil
}

func (h *memHistory) RecentByMerchant(_ context.Context, merchantID string, limit int) ([]decimal.Decimal, error) {
	if h.err != nil {
		return nil, h.err
	}
	txs := h.filter(func(tx domain.Transaction) bool { return tx.MerchantID == merchantID })
	// newest first: later appends are newer in these tests
	var out []decimal.Decimal
	for i := len(txs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, txs[i].Amount)
	}
	return out, nil
}

// staticConfigs hands out one config per merchant.
type staticConfigs struct {
	cfg *domain.MerchantRiskConfig
	err error
}

func (s *staticConfigs) GetConfig(_ context.Context, merchantID string) (*domain.MerchantRiskConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.cfg != nil {
		return s.cfg, nil
	}
	return domain.DefaultMerchantRiskConfig(merchantID), nil
}

// recordingAlerts keeps created alerts in memory.
type recordingAlerts struct {
	mu     sync.Mutex
	alerts []*domain.FraudAlert
	err    error
}

func (r *recordingAlerts) CreateAlert(_ context.Context, tx *domain.Transaction, result *domain.CheckResult) (*domain.FraudAlert, error) {
	if r.err != nil {
		return nil, r.err
	}
	status := domain.AlertPending
	if result.ShouldBlock {
		status = domain.AlertBlocked
	}
	alert := &domain.FraudAlert{
		ID:             uuid.New().String(),
		TransactionID:  tx.ID,
		MerchantID:     tx.MerchantID,
		PayerID:        tx.PayerID,
		Amount:         tx.Amount,
		RiskScore:      result.RiskScore,
		RiskLevel:      result.RiskLevel,
		Status:         status,
		RulesTriggered: result.RulesTriggered,
	}
	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	r.mu.Unlock()
	return alert, nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// fixedRule always returns the same outcome.
type fixedRule struct {
	name    string
	outcome domain.RuleOutcome
	err     error
}

func (f fixedRule) Name() string { return f.name }

func (f fixedRule) Evaluate(context.Context, *domain.Transaction, *domain.MerchantRiskConfig, domain.TransactionHistory) (domain.RuleOutcome, error) {
	return f.outcome, f.err
}

// recorder captures engine measurements.
type recorder struct {
	mu       sync.Mutex
	observed []*domain.CheckResult
	failures []string
}

func (r *recorder) ObserveCheck(result *domain.CheckResult, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed = append(r.observed, result)
}

func (r *recorder) CheckFailed(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage)
}

var errStoreDown = errors.New("store down")

// noon is a fixed clock outside the unusual-time window.
func noon() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
}

func txn(merchant, payer string, amount int64) *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.New().String(),
		MerchantID:    merchant,
		PayerID:       payer,
		Amount:        decimal.NewFromInt(amount),
		Status:        domain.TransactionPending,
		PaymentMethod: domain.PaymentMethodCard,
		CreatedAt:     noon(),
	}
}

// Package alerts creates, reviews and lists fraud alerts.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Observer is told about alert lifecycle changes, typically for metrics.
type Observer interface {
	AlertCreated(alert *domain.FraudAlert)
	AlertReviewed(alert *domain.FraudAlert)
}

// Service wraps an AlertStore with id assignment, timestamps and events.
type Service struct {
	store    domain.AlertStore
	bus      domain.EventBus
	observer Observer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEventBus publishes alert created and reviewed events.
func WithEventBus(b domain.EventBus) Option {
	return func(s *Service) { s.bus = b }
}

// WithObserver reports lifecycle changes.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock replaces time.Now for created/reviewed timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an alert service.
func NewService(store domain.AlertStore, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAlert persists the alert for a checked transaction. The alert is
// BLOCKED when the result blocks the payment and PENDING otherwise.
func (s *Service) CreateAlert(ctx context.Context, tx *domain.Transaction, result *domain.CheckResult) (*domain.FraudAlert, error) {
	if tx == nil || result == nil {
		return nil, fmt.Errorf("%w: transaction and result are required", domain.ErrValidation)
	}

	status := domain.AlertPending
	if result.ShouldBlock {
		status = domain.AlertBlocked
	}

	now := s.now().UTC()
	alert := &domain.FraudAlert{
		ID:             uuid.New().String(),
		TransactionID:  tx.ID,
		MerchantID:     tx.MerchantID,
		PayerID:        tx.PayerID,
		Amount:         tx.Amount,
		RiskScore:      result.RiskScore,
		RiskLevel:      result.RiskLevel,
		Status:         status,
		RulesTriggered: append([]string(nil), result.RulesTriggered...),
		Metadata:       tx.Metadata.Clone(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.SaveAlert(ctx, alert); err != nil {
		return nil, domain.NewDependencyError("save fraud alert", err)
	}

	slog.Warn("fraud alert created",
		"alert_id", alert.ID,
		"transaction_id", alert.TransactionID,
		"merchant_id", alert.MerchantID,
		"risk_score", alert.RiskScore,
		"risk_level", alert.RiskLevel,
		"status", alert.Status,
	)

	if s.observer != nil {
		s.observer.AlertCreated(alert)
	}
	s.publish(ctx, domain.TopicAlertCreated, alert)
	return alert, nil
}

// ReviewAlert moves an alert to status. Notes and reviewer are only
// overwritten when supplied.
func (s *Service) ReviewAlert(ctx context.Context, alertID string, status string, notes *string, reviewer *string) (*domain.FraudAlert, error) {
	st, err := domain.ParseAlertStatus(status)
	if err != nil {
		return nil, err
	}

	alert, err := s.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	alert.Status = st
	if notes != nil {
		alert.ReviewNotes = notes
	}
	if reviewer != nil {
		alert.ReviewedBy = reviewer
	}
	alert.ReviewedAt = &now
	alert.UpdatedAt = now

	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.NewDependencyError("update fraud alert", err)
	}

	slog.Info("fraud alert reviewed",
		"alert_id", alert.ID,
		"merchant_id", alert.MerchantID,
		"status", alert.Status,
	)

	if s.observer != nil {
		s.observer.AlertReviewed(alert)
	}
	s.publish(ctx, domain.TopicAlertReviewed, alert)
	return alert, nil
}

// GetAlert fetches an alert by id.
func (s *Service) GetAlert(ctx context.Context, alertID string) (*domain.FraudAlert, error) {
	alert, err := s.store.GetAlert(ctx, alertID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, domain.NewDependencyError("get fraud alert", err)
	}
	return alert, nil
}

// ListAlerts returns alerts newest first.
func (s *Service) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.FraudAlert, error) {
	if filter.Limit <= 0 {
		filter.Limit = domain.DefaultAlertLimit
	}
	alerts, err := s.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, domain.NewDependencyError("list fraud alerts", err)
	}
	return alerts, nil
}

func (s *Service) publish(ctx context.Context, topic string, alert *domain.FraudAlert) {
	if s.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, s.bus, alert.MerchantID, topic, alert); err != nil {
		slog.Warn("failed to publish alert event",
			"alert_id", alert.ID,
			"topic", topic,
			"error", err,
		)
	}
}

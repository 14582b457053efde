// Package rules provides the risk scoring engine and its rule evaluators.
package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("kestrel-rules")

// ConfigProvider returns the risk config of a merchant, creating it on
// first use.
type ConfigProvider interface {
	GetConfig(ctx context.Context, merchantID string) (*domain.MerchantRiskConfig, error)
}

// AlertCreator persists the alert of a blocked transaction.
type AlertCreator interface {
	CreateAlert(ctx context.Context, tx *domain.Transaction, result *domain.CheckResult) (*domain.FraudAlert, error)
}

// Recorder receives per-check measurements.
type Recorder interface {
	ObserveCheck(result *domain.CheckResult, elapsed time.Duration)
	CheckFailed(stage string)
}

// Engine scores transactions against an ordered list of evaluators.
type Engine struct {
	configs    ConfigProvider
	history    domain.TransactionHistory
	processor  *decision.Processor
	alerts     AlertCreator
	bus        domain.EventBus
	recorder   Recorder
	now        Clock
	evaluators []RuleEvaluator
	extra      []RuleEvaluator
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventBus publishes a decision event for every check.
func WithEventBus(bus domain.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithRecorder reports check measurements, typically to Prometheus.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock replaces time.Now for windows and the time anomaly rule.
func WithClock(now Clock) Option {
	return func(e *Engine) { e.now = now }
}

// WithEvaluators replaces the built-in evaluators.
func WithEvaluators(evaluators ...RuleEvaluator) Option {
	return func(e *Engine) { e.evaluators = evaluators }
}

// WithExpressionRules appends operator rules after the built-ins.
func WithExpressionRules(rules ...*ExpressionRule) Option {
	return func(e *Engine) {
		for _, r := range rules {
			e.extra = append(e.extra, r)
		}
	}
}

// NewEngine creates a scoring engine.
func NewEngine(configs ConfigProvider, history domain.TransactionHistory, processor *decision.Processor, alerts AlertCreator, opts ...Option) (*Engine, error) {
	if configs == nil || history == nil || alerts == nil {
		return nil, errors.New("rules: config provider, history and alert creator are required")
	}
	if processor == nil {
		processor = decision.NewProcessor()
	}

	e := &Engine{
		configs:   configs,
		history:   history,
		processor: processor,
		alerts:    alerts,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluators == nil {
		e.evaluators = DefaultEvaluators(e.now)
	}
	e.evaluators = append(slices.Clip(e.evaluators), e.extra...)

	return e, nil
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// RulesCount returns the number of evaluators run per check.
func (e *Engine) RulesCount() int {
	return len(e.evaluators)
}

// RuleNames returns the evaluator names in scoring order.
func (e *Engine) RuleNames() []string {
	names := make([]string, len(e.evaluators))
	for i, ev := range e.evaluators {
		names[i] = ev.Name()
	}
	return names
}

// CheckTransaction scores a payment, decides whether to block it and
// persists an alert when it does.
func (e *Engine) CheckTransaction(ctx context.Context, tc domain.TransactionContext) (*domain.CheckResult, error) {
	start := time.Now()

	if err := tc.Transaction.Validate(); err != nil {
		e.failed("validation")
		return nil, err
	}

	tx := *tc.Transaction
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	ctx, span := tracer.Start(ctx, "rules.CheckTransaction",
		trace.WithAttributes(
			attribute.String("merchant.id", tx.MerchantID),
			attribute.String("transaction.id", tx.ID),
		),
	)
	defer span.End()

	slog.Debug("checking transaction",
		"transaction_id", tx.ID,
		"merchant_id", tx.MerchantID,
		"payer_id", tx.PayerID,
		"ip_address", tc.IPAddress,
		"user_agent", tc.UserAgent,
		"device_fingerprint", tc.DeviceFingerprint,
	)

	cfg, err := e.configs.GetConfig(ctx, tx.MerchantID)
	if err != nil {
		e.fail(span, "config", err)
		return nil, domain.NewDependencyError("load merchant config", err)
	}

	outcomes, err := e.evaluate(ctx, &tx, cfg)
	if err != nil {
		e.fail(span, "rules", err)
		return nil, err
	}

	agg := e.processor.Aggregate(outcomes)
	d := e.processor.Decide(agg.Score, cfg)
	result := e.processor.Result(agg, d)

	if result.ShouldBlock {
		alert, err := e.alerts.CreateAlert(ctx, &tx, result)
		if err != nil {
			e.fail(span, "alert", err)
			return nil, domain.NewDependencyError("create fraud alert", err)
		}
		result.Alert = alert
	}

	span.SetAttributes(
		attribute.Int("risk.score", result.RiskScore),
		attribute.String("risk.level", string(result.RiskLevel)),
		attribute.Bool("risk.blocked", result.ShouldBlock),
		attribute.StringSlice("risk.rules", result.RulesTriggered),
	)

	elapsed := time.Since(start)
	if e.recorder != nil {
		e.recorder.ObserveCheck(result, elapsed)
	}

	e.publishDecision(ctx, &tx, result)

	slog.Info("transaction checked",
		"transaction_id", tx.ID,
		"merchant_id", tx.MerchantID,
		"risk_score", result.RiskScore,
		"risk_level", result.RiskLevel,
		"should_block", result.ShouldBlock,
		"rules_triggered", result.RulesTriggered,
		"duration_ms", elapsed.Milliseconds(),
	)

	return result, nil
}

// evaluate runs every evaluator concurrently and returns their outcomes in
// evaluator order. The first error cancels the rest.
func (e *Engine) evaluate(ctx context.Context, tx *domain.Transaction, cfg *domain.MerchantRiskConfig) ([]domain.RuleOutcome, error) {
	outcomes := make([]domain.RuleOutcome, len(e.evaluators))

	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range e.evaluators {
		g.Go(func() error {
			out, err := ev.Evaluate(gctx, tx, cfg, e.history)
			if err != nil {
				return &domain.DependencyError{Op: "rule " + ev.Name(), Err: err}
			}
			outcomes[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *Engine) publishDecision(ctx context.Context, tx *domain.Transaction, result *domain.CheckResult) {
	if e.bus == nil {
		return
	}

	event := domain.DecisionEvent{
		TransactionID:  tx.ID,
		MerchantID:     tx.MerchantID,
		PayerID:        tx.PayerID,
		RiskScore:      result.RiskScore,
		RiskLevel:      result.RiskLevel,
		ShouldBlock:    result.ShouldBlock,
		RulesTriggered: result.RulesTriggered,
	}
	if result.Alert != nil {
		event.AlertID = result.Alert.ID
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to encode decision event", "transaction_id", tx.ID, "error", err)
		return
	}
	if err := e.bus.Publish(ctx, tx.MerchantID, domain.TopicRiskDecision, payload); err != nil {
		slog.Warn("failed to publish decision event",
			"transaction_id", tx.ID,
			"merchant_id", tx.MerchantID,
			"error", err,
		)
	}
}

func (e *Engine) fail(span trace.Span, stage string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, fmt.Sprintf("%s: %v", stage, err))
	e.failed(stage)
}

func (e *Engine) failed(stage string) {
	if e.recorder != nil {
		e.recorder.CheckFailed(stage)
	}
}

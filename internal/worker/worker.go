// Package worker scores transactions received from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// GlobalScope is subscribed when no merchant ids are configured.
const GlobalScope = "_global"

// Checker scores one transaction.
type Checker interface {
	CheckTransaction(ctx context.Context, tc domain.TransactionContext) (*domain.CheckResult, error)
}

// TransactionRecorder stores a scored transaction so later checks see it
// in history.
type TransactionRecorder interface {
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Worker consumes kestrel.transaction.received messages and runs them
// through the engine on a fixed pool of goroutines.
type Worker struct {
	bus      domain.EventBus
	checker  Checker
	recorder TransactionRecorder

	mu            sync.Mutex
	subscriptions []domain.Subscription
	jobs          chan *domain.Message
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// MerchantIDs to consume; empty subscribes to GlobalScope
	MerchantIDs []string

	// WorkerCount is the number of goroutines scoring messages
	WorkerCount int
}

// NewWorker creates a worker. recorder may be nil.
func NewWorker(bus domain.EventBus, checker Checker, recorder TransactionRecorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		checker:  checker,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the configured scopes and starts the pool.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}

	scopes := cfg.MerchantIDs
	if len(scopes) == 0 {
		scopes = []string{GlobalScope}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.jobs != nil {
		return errors.New("worker: already started")
	}
	w.jobs = make(chan *domain.Message, cfg.WorkerCount)

	for _, scope := range scopes {
		sub, err := w.bus.Subscribe(w.ctx, scope, domain.TopicTransactionReceived, w.enqueue)
		if err != nil {
			slog.Error("failed to start worker for merchant",
				"merchant_id", scope,
				"error", err,
			)
			continue
		}
		w.subscriptions = append(w.subscriptions, sub)
	}
	if len(w.subscriptions) == 0 {
		return fmt.Errorf("worker: no subscription could be created for %d scopes", len(scopes))
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run()
	}

	slog.Info("workers started",
		"scope_count", len(w.subscriptions),
		"worker_count", cfg.WorkerCount,
		"topic", domain.TopicTransactionReceived,
	)

	return nil
}

func (w *Worker) enqueue(ctx context.Context, msg *domain.Message) error {
	select {
	case w.jobs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.jobs:
			if err := w.process(w.ctx, msg); err != nil {
				slog.Error("transaction processing failed",
					"message_id", msg.ID,
					"merchant_id", msg.Scope,
					"error", err,
				)
			}
		}
	}
}

// process scores one message and records the transaction.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var tc domain.TransactionContext
	if err := json.Unmarshal(msg.Payload, &tc); err != nil {
		return fmt.Errorf("%w: decode transaction message: %v", domain.ErrValidation, err)
	}
	if tc.Transaction == nil {
		return fmt.Errorf("%w: message carries no transaction", domain.ErrValidation)
	}
	if tc.Transaction.ID == "" {
		tc.Transaction.ID = uuid.New().String()
	}

	result, err := w.checker.CheckTransaction(ctx, tc)
	if err != nil {
		return err
	}

	if w.recorder != nil {
		if err := w.recorder.SaveTransaction(ctx, tc.Transaction); err != nil {
			slog.Error("failed to record transaction",
				"transaction_id", tc.Transaction.ID,
				"error", err,
			)
		}
	}

	slog.Info("transaction processed",
		"transaction_id", tc.Transaction.ID,
		"merchant_id", tc.Transaction.MerchantID,
		"risk_score", result.RiskScore,
		"should_block", result.ShouldBlock,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop unsubscribes and waits for in-flight messages.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

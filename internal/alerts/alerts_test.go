package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory domain.AlertStore.
type memStore struct {
	mu       sync.Mutex
	alerts   map[string]domain.FraudAlert
	saveErr  error
	lastList domain.AlertFilter
}

func newMemStore() *memStore {
	return &memStore{alerts: make(map[string]domain.FraudAlert)}
}

func (m *memStore) SaveAlert(_ context.Context, a *domain.FraudAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.alerts[a.ID] = *a
	return nil
}

func (m *memStore) GetAlert(_ context.Context, id string) (*domain.FraudAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) UpdateAlert(_ context.Context, a *domain.FraudAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; !ok {
		return domain.ErrNotFound
	}
	m.alerts[a.ID] = *a
	return nil
}

func (m *memStore) ListAlerts(_ context.Context, f domain.AlertFilter) ([]*domain.FraudAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastList = f
	var out []*domain.FraudAlert
	for _, a := range m.alerts {
		if f.MerchantID != "" && a.MerchantID != f.MerchantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) ListAlertsSince(context.Context, string, time.Time) ([]*domain.FraudAlert, error) {
	return nil, nil
}

type countingObserver struct {
	created, reviewed int
}

func (o *countingObserver) AlertCreated(*domain.FraudAlert)  { o.created++ }
func (o *countingObserver) AlertReviewed(*domain.FraudAlert) { o.reviewed++ }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func blockedResult() *domain.CheckResult {
	return &domain.CheckResult{
		RiskScore:      96,
		RiskLevel:      domain.RiskCritical,
		ShouldBlock:    true,
		RequiresReview: true,
		RulesTriggered: []string{domain.RuleAmountExceedsLimit, domain.RuleVelocityHourlyExceeded},
	}
}

func testTx() *domain.Transaction {
	return &domain.Transaction{
		ID:         "tx-001",
		MerchantID: "merchant-001",
		PayerID:    "payer-001",
		Amount:     decimal.NewFromInt(2000),
		Status:     domain.TransactionPending,
		Metadata:   domain.Metadata{"channel": domain.StringValue("web")},
	}
}

func TestCreateAlert(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("BlockedAlert", func(t *testing.T) {
		store := newMemStore()
		obs := &countingObserver{}
		svc := NewService(store, WithClock(fixedClock(created)), WithObserver(obs))

		tx := testTx()
		alert, err := svc.CreateAlert(ctx, tx, blockedResult())
		if err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}

		if alert.ID == "" {
			t.Error("expected alert id")
		}
		if alert.Status != domain.AlertBlocked {
			t.Errorf("expected blocked, got %s", alert.Status)
		}
		if alert.TransactionID != "tx-001" || alert.MerchantID != "merchant-001" || alert.PayerID != "payer-001" {
			t.Errorf("unexpected identity fields: %+v", alert)
		}
		if !alert.Amount.Equal(decimal.NewFromInt(2000)) || alert.RiskScore != 96 || alert.RiskLevel != domain.RiskCritical {
			t.Errorf("unexpected risk fields: %+v", alert)
		}
		if len(alert.RulesTriggered) != 2 {
			t.Errorf("expected 2 rules, got %v", alert.RulesTriggered)
		}
		if !alert.CreatedAt.Equal(created) || !alert.UpdatedAt.Equal(created) {
			t.Errorf("unexpected timestamps %v %v", alert.CreatedAt, alert.UpdatedAt)
		}
		if obs.created != 1 {
			t.Errorf("expected observer to see 1 creation, got %d", obs.created)
		}

		tx.Metadata["channel"] = domain.StringValue("mutated")
		stored, _ := store.GetAlert(ctx, alert.ID)
		if s, _ := stored.Metadata["channel"].Str(); s != "web" {
			t.Errorf("expected metadata to be copied, got %q", s)
		}
	})

	t.Run("PendingWhenNotBlocking", func(t *testing.T) {
		svc := NewService(newMemStore())

		result := blockedResult()
		result.ShouldBlock = false
		alert, err := svc.CreateAlert(ctx, testTx(), result)
		if err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}
		if alert.Status != domain.AlertPending {
			t.Errorf("expected pending, got %s", alert.Status)
		}
	})

	t.Run("StoreFailure", func(t *testing.T) {
		store := newMemStore()
		store.saveErr = errors.New("disk full")
		svc := NewService(store)

		_, err := svc.CreateAlert(ctx, testTx(), blockedResult())
		if !errors.Is(err, domain.ErrDependency) {
			t.Errorf("expected ErrDependency, got %v", err)
		}
	})

	t.Run("PublishesEvent", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()

		events := make(chan domain.FraudAlert, 1)
		_, _ = b.Subscribe(ctx, "merchant-001", domain.TopicAlertCreated, func(_ context.Context, msg *domain.Message) error {
			var a domain.FraudAlert
			if err := json.Unmarshal(msg.Payload, &a); err != nil {
				return err
			}
			events <- a
			return nil
		})

		svc := NewService(newMemStore(), WithEventBus(b))
		alert, err := svc.CreateAlert(ctx, testTx(), blockedResult())
		if err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}

		select {
		case got := <-events:
			if got.ID != alert.ID {
				t.Errorf("expected event for %s, got %s", alert.ID, got.ID)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for alert event")
		}
	})
}

func TestReviewAlert(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	reviewed := created.Add(2 * time.Hour)

	newSvc := func(store *memStore) (*Service, *time.Time) {
		now := created
		return NewService(store, WithClock(func() time.Time { return now })), &now
	}

	t.Run("RoundTrip", func(t *testing.T) {
		store := newMemStore()
		svc, now := newSvc(store)

		alert, err := svc.CreateAlert(ctx, testTx(), blockedResult())
		if err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}

		*now = reviewed
		notes := "customer confirmed"
		reviewer := "analyst-7"
		got, err := svc.ReviewAlert(ctx, alert.ID, "approved", &notes, &reviewer)
		if err != nil {
			t.Fatalf("ReviewAlert failed: %v", err)
		}

		fetched, err := svc.GetAlert(ctx, alert.ID)
		if err != nil {
			t.Fatalf("GetAlert failed: %v", err)
		}
		for _, a := range []*domain.FraudAlert{got, fetched} {
			if a.Status != domain.AlertApproved {
				t.Errorf("expected approved, got %s", a.Status)
			}
			if a.ReviewNotes == nil || *a.ReviewNotes != notes {
				t.Errorf("expected notes %q, got %v", notes, a.ReviewNotes)
			}
			if a.ReviewedBy == nil || *a.ReviewedBy != reviewer {
				t.Errorf("expected reviewer %q, got %v", reviewer, a.ReviewedBy)
			}
			if a.ReviewedAt == nil || !a.ReviewedAt.Equal(reviewed) {
				t.Errorf("expected reviewed at %v, got %v", reviewed, a.ReviewedAt)
			}
			if !a.UpdatedAt.Equal(reviewed) || !a.CreatedAt.Equal(created) {
				t.Errorf("unexpected timestamps %v %v", a.CreatedAt, a.UpdatedAt)
			}
		}
	})

	t.Run("NilNotesKeepPrevious", func(t *testing.T) {
		store := newMemStore()
		svc, _ := newSvc(store)

		alert, _ := svc.CreateAlert(ctx, testTx(), blockedResult())
		notes := "first pass"
		if _, err := svc.ReviewAlert(ctx, alert.ID, "pending", &notes, nil); err != nil {
			t.Fatalf("ReviewAlert failed: %v", err)
		}

		got, err := svc.ReviewAlert(ctx, alert.ID, "blocked", nil, nil)
		if err != nil {
			t.Fatalf("ReviewAlert failed: %v", err)
		}
		if got.ReviewNotes == nil || *got.ReviewNotes != "first pass" {
			t.Errorf("expected notes to be kept, got %v", got.ReviewNotes)
		}
		if got.ReviewedBy != nil {
			t.Errorf("expected no reviewer, got %v", *got.ReviewedBy)
		}
		if got.Status != domain.AlertBlocked {
			t.Errorf("expected blocked, got %s", got.Status)
		}
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		svc, _ := newSvc(newMemStore())

		_, err := svc.ReviewAlert(ctx, "any", "escalated", nil, nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		svc, _ := newSvc(newMemStore())

		_, err := svc.ReviewAlert(ctx, "missing", "approved", nil, nil)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListAlerts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, merchant := range []string{"m-1", "m-2", "m-1"} {
		now := base.Add(time.Duration(i) * time.Minute)
		svc := NewService(store, WithClock(fixedClock(now)))
		tx := testTx()
		tx.MerchantID = merchant
		if _, err := svc.CreateAlert(ctx, tx, blockedResult()); err != nil {
			t.Fatalf("CreateAlert failed: %v", err)
		}
	}

	svc := NewService(store)

	t.Run("DefaultLimit", func(t *testing.T) {
		alerts, err := svc.ListAlerts(ctx, domain.AlertFilter{})
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if store.lastList.Limit != domain.DefaultAlertLimit {
			t.Errorf("expected limit %d, got %d", domain.DefaultAlertLimit, store.lastList.Limit)
		}
		if len(alerts) != 3 {
			t.Fatalf("expected 3 alerts, got %d", len(alerts))
		}
		if !alerts[0].CreatedAt.After(alerts[2].CreatedAt) {
			t.Error("expected newest first")
		}
	})

	t.Run("ByMerchant", func(t *testing.T) {
		alerts, err := svc.ListAlerts(ctx, domain.AlertFilter{MerchantID: "m-1", Limit: 1})
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(alerts) != 1 || alerts[0].MerchantID != "m-1" {
			t.Errorf("unexpected alerts: %v", alerts)
		}
		if !alerts[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
			t.Errorf("expected newest m-1 alert, got %v", alerts[0].CreatedAt)
		}
	})
}

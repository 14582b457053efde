package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	scope := "merchant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		msgs := make(chan *domain.Message, 1)

		_, err := bus.Subscribe(ctx, scope, domain.TopicRiskDecision, func(_ context.Context, msg *domain.Message) error {
			msgs <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, scope, domain.TopicRiskDecision, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-msgs:
			if string(msg.Payload) != "hello" {
				t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
			}
			if msg.Scope != scope {
				t.Errorf("expected scope '%s', got '%s'", scope, msg.Scope)
			}
			if msg.Topic != domain.TopicRiskDecision {
				t.Errorf("expected topic '%s', got '%s'", domain.TopicRiskDecision, msg.Topic)
			}
			if msg.ID == "" || msg.Timestamp == 0 {
				t.Error("expected id and timestamp to be set")
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("ScopeIsolation", func(t *testing.T) {
		var received1, received2 atomic.Int32

		_, _ = bus.Subscribe(ctx, "merchant-a", "isolation.topic", func(context.Context, *domain.Message) error {
			received1.Add(1)
			return nil
		})
		_, _ = bus.Subscribe(ctx, "merchant-b", "isolation.topic", func(context.Context, *domain.Message) error {
			received2.Add(1)
			return nil
		})

		_ = bus.Publish(ctx, "merchant-a", "isolation.topic", []byte("msg1"))
		waitFor(t, func() bool { return received1.Load() == 1 })
		time.Sleep(20 * time.Millisecond)

		if received2.Load() != 0 {
			t.Errorf("merchant-b should receive 0 messages, got %d", received2.Load())
		}
	})

	t.Run("RequiresScope", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("data")); !errors.Is(err, ErrScopeRequired) {
			t.Errorf("expected ErrScopeRequired, got %v", err)
		}

		_, err := bus.Subscribe(ctx, "", "topic", func(context.Context, *domain.Message) error { return nil })
		if !errors.Is(err, ErrScopeRequired) {
			t.Errorf("expected ErrScopeRequired, got %v", err)
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, scope, "unsub.topic", func(context.Context, *domain.Message) error {
			count.Add(1)
			return nil
		})

		_ = bus.Publish(ctx, scope, "unsub.topic", []byte("msg1"))
		waitFor(t, func() bool { return count.Load() == 1 })

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		if n := bus.SubscriberCount(scope, "unsub.topic"); n != 0 {
			t.Errorf("expected subscription to be removed, %d left", n)
		}

		_ = bus.Publish(ctx, scope, "unsub.topic", []byte("msg2"))
		time.Sleep(20 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		_, _ = bus.Subscribe(ctx, scope, "multi.topic", func(context.Context, *domain.Message) error {
			count1.Add(1)
			return nil
		})
		_, _ = bus.Subscribe(ctx, scope, "multi.topic", func(context.Context, *domain.Message) error {
			count2.Add(1)
			return nil
		})

		_ = bus.Publish(ctx, scope, "multi.topic", []byte("broadcast"))
		waitFor(t, func() bool { return count1.Load() == 1 && count2.Load() == 1 })
	})

	t.Run("HandlerErrorKeepsSubscription", func(t *testing.T) {
		var count atomic.Int32

		_, _ = bus.Subscribe(ctx, scope, "failing.topic", func(context.Context, *domain.Message) error {
			count.Add(1)
			return errors.New("boom")
		})

		_ = bus.Publish(ctx, scope, "failing.topic", []byte("1"))
		_ = bus.Publish(ctx, scope, "failing.topic", []byte("2"))
		waitFor(t, func() bool { return count.Load() == 2 })
	})

	t.Run("PublishJSON", func(t *testing.T) {
		events := make(chan domain.DecisionEvent, 1)

		_, _ = bus.Subscribe(ctx, scope, domain.TopicAlertCreated, func(_ context.Context, msg *domain.Message) error {
			var ev domain.DecisionEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return err
			}
			events <- ev
			return nil
		})

		want := domain.DecisionEvent{TransactionID: "tx-1", RiskScore: 96, RiskLevel: domain.RiskCritical, ShouldBlock: true}
		if err := PublishJSON(ctx, bus, scope, domain.TopicAlertCreated, want); err != nil {
			t.Fatalf("PublishJSON failed: %v", err)
		}

		select {
		case got := <-events:
			if got.TransactionID != "tx-1" || got.RiskScore != 96 || !got.ShouldBlock {
				t.Errorf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	})

	t.Run("Request", func(t *testing.T) {
		_, _ = bus.Subscribe(ctx, scope, "echo", func(ctx context.Context, msg *domain.Message) error {
			return bus.Publish(ctx, scope, msg.Metadata[ReplyToKey], append([]byte("re:"), msg.Payload...))
		})

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := bus.Request(reqCtx, scope, "echo", []byte("ping"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if string(reply) != "re:ping" {
			t.Errorf("expected 're:ping', got '%s'", string(reply))
		}
	})

	t.Run("RequestWithoutResponder", func(t *testing.T) {
		reqCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		if _, err := bus.Request(reqCtx, scope, "nobody.home", []byte("ping")); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, scope, "my.topic", func(context.Context, *domain.Message) error {
			return nil
		})

		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()
	scope := "merchant-001"

	_, _ = bus.Subscribe(ctx, scope, "close.topic", func(context.Context, *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, scope, "close.topic", []byte("data")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, scope, "close.topic", func(context.Context, *domain.Message) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestNATSSubject(t *testing.T) {
	got := subject("merchant-42", domain.TopicRiskDecision)
	if got != "kestrel.risk.decision.merchant-42" {
		t.Errorf("unexpected subject %q", got)
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	scope := "merchant-load"

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	_, _ = bus.Subscribe(ctx, scope, "load.topic", func(context.Context, *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messageCount; i++ {
		_ = bus.Publish(ctx, scope, "load.topic", []byte("msg"))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/machikart/internal/models"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafka_PublishKeysByOrder(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewKafka(zaptest.NewLogger(t), producer, "orders")

	order := models.Order{ID: "o1", PhoneNumber: "9876543210", Status: models.OrderStatusNew}
	if err := pub.Publish(context.Background(), Event{Type: OrderCreated, OrderID: "o1", Order: &order}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(producer.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(producer.msgs))
	}
	msg := producer.msgs[0]
	if msg.Topic != "orders" || string(msg.Key) != "o1" {
		t.Fatalf("unexpected routing: topic=%s key=%s", msg.Topic, msg.Key)
	}
	if string(msg.Headers[0].Value) != string(OrderCreated) {
		t.Fatalf("unexpected event_type header %q", msg.Headers[0].Value)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded["type"] != "order.created" || decoded["at"] == nil {
		t.Fatalf("unexpected payload: %s", msg.Value)
	}
}

func TestKafka_PublishError(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewKafka(zaptest.NewLogger(t), &fakeProducer{err: boom}, "orders")

	if err := pub.Publish(context.Background(), Event{Type: OrderDeleted, OrderID: "o1"}); !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

type recorder struct {
	got []Type
	err error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.got = append(r.got, ev.Type)
	return r.err
}

func TestMulti_ReachesEveryPublisher(t *testing.T) {
	boom := errors.New("telegram down")
	a, b := &recorder{err: boom}, &recorder{}

	err := Multi{a, b, Nop{}}.Publish(context.Background(), Event{Type: OrdersPurged, Count: 3})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatal("every publisher must receive the event")
	}
}

type publishFunc func(context.Context, Event) error

func (f publishFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

func TestPublishDetached_OutlivesCaller(t *testing.T) {
	release := make(chan struct{})
	got := make(chan error, 1)
	pub := publishFunc(func(ctx context.Context, _ Event) error {
		<-release
		got <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	PublishDetached(ctx, pub, Event{Type: OrderDeleted, OrderID: "o1"}, zaptest.NewLogger(t))
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("publish blocked the caller for %v", elapsed)
	}
	cancel()
	close(release)

	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("caller cancellation leaked into the publish: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never published")
	}
}

func TestPublishDetached_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := publishFunc(func(context.Context, Event) error { return errors.New("broker down") })

	PublishDetached(context.Background(), pub, Event{Type: OrderStatusChanged, OrderID: "o1"}, zap.New(core))

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("event not delivered").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("failed publish was not logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	entry := logs.FilterMessage("event not delivered").All()[0]
	if entry.ContextMap()["order_id"] != "o1" {
		t.Fatalf("unexpected log fields: %v", entry.ContextMap())
	}
}

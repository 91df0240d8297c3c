package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/machikart/internal/access"
	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/models"
)

var operator = access.Grant{Operator: access.OperatorSubject, ExpiresAt: time.Now().Add(time.Hour)}

type recorder chan events.Event

func (r recorder) Publish(_ context.Context, ev events.Event) error {
	r <- ev
	return nil
}

// stalled holds every publish until the test ends.
type stalled struct {
	started chan struct{}
	release chan struct{}
}

func newStalled(t *testing.T, n int) stalled {
	s := stalled{started: make(chan struct{}, n), release: make(chan struct{})}
	t.Cleanup(func() { close(s.release) })
	return s
}

func (s stalled) Publish(ctx context.Context, _ events.Event) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func receive(t *testing.T, r recorder, n int) []events.Event {
	t.Helper()
	var got []events.Event
	for len(got) < n {
		select {
		case ev := <-r:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d events, got %d", n, len(got))
		}
	}
	return got
}

func seeded(t *testing.T) (*docstore.Memory, models.Order) {
	t.Helper()
	store := docstore.NewMemory()
	order, err := store.Insert(context.Background(), models.Order{
		CustomerName: "Asha",
		PhoneNumber:  "9876543210",
		Items:        []models.OrderItem{{ProductID: "p1", FishName: "Pomfret", PricePerKg: 650, Quantity: 1}},
		TotalAmount:  650,
		Status:       models.OrderStatusNew,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return store, order
}

func TestNewController_RequiresGrant(t *testing.T) {
	tests := map[string]access.Grant{
		"zero":    {},
		"expired": {Operator: "operator", ExpiresAt: time.Now().Add(-time.Minute)},
	}
	for name, grant := range tests {
		if _, err := NewController(docstore.NewMemory(), grant, nil, zaptest.NewLogger(t)); !errors.Is(err, access.ErrUnauthorized) {
			t.Errorf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestSetStatus_AnyOrder(t *testing.T) {
	store, order := seeded(t)
	rec := make(recorder, 3)
	ctl, err := NewController(store, operator, rec, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("controller: %v", err)
	}

	// backwards moves are allowed
	for _, status := range []models.OrderStatus{
		models.OrderStatusDelivered,
		models.OrderStatusNew,
		models.OrderStatusOutForDelivery,
	} {
		if err := ctl.SetStatus(context.Background(), order.ID, status); err != nil {
			t.Fatalf("set %s: %v", status, err)
		}
	}

	got, _ := store.Query(context.Background(), docstore.Filter{ID: order.ID})
	if got[0].Status != models.OrderStatusOutForDelivery {
		t.Fatalf("expected last write to win, got %s", got[0].Status)
	}
	if got[0].TotalAmount != 650 || len(got[0].Items) != 1 {
		t.Fatal("status updates must not touch items or totals")
	}
	for _, ev := range receive(t, rec, 3) {
		if ev.Type != events.OrderStatusChanged || ev.OrderID != order.ID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
}

func TestController_SlowPublisherDoesNotBlock(t *testing.T) {
	store, order := seeded(t)
	pub := newStalled(t, 2)
	ctl, _ := NewController(store, operator, pub, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if err := ctl.SetStatus(ctx, order.ID, models.OrderStatusConfirmed); err != nil {
			done <- err
			return
		}
		done <- ctl.DeleteOrder(ctx, order.ID, ConfirmDelete(order.ID))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("status change and delete waited on the publisher")
	}
	if left, _ := store.Query(context.Background(), docstore.Filter{}); len(left) != 0 {
		t.Fatal("delete should be applied before the event is delivered")
	}
	for i := 0; i < 2; i++ {
		select {
		case <-pub.started:
		case <-time.After(2 * time.Second):
			t.Fatal("events were never handed to the publisher")
		}
	}
}

func TestSetStatus_Rejects(t *testing.T) {
	store, order := seeded(t)
	ctl, _ := NewController(store, operator, nil, zaptest.NewLogger(t))

	if err := ctl.SetStatus(context.Background(), order.ID, "CANCELLED"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if err := ctl.SetStatus(context.Background(), "missing", models.OrderStatusConfirmed); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteOrder_NeedsMatchingConfirmation(t *testing.T) {
	store, order := seeded(t)
	ctl, _ := NewController(store, operator, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	for _, confirm := range []Confirmation{{}, ConfirmDelete("another")} {
		if err := ctl.DeleteOrder(ctx, order.ID, confirm); !errors.Is(err, ErrUnconfirmed) {
			t.Fatalf("expected ErrUnconfirmed, got %v", err)
		}
	}
	if left, _ := store.Query(ctx, docstore.Filter{}); len(left) != 1 {
		t.Fatal("unconfirmed delete must not remove the order")
	}

	if err := ctl.DeleteOrder(ctx, order.ID, ConfirmDelete(order.ID)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if left, _ := store.Query(ctx, docstore.Filter{}); len(left) != 0 {
		t.Fatal("confirmed delete should remove the order")
	}
	if err := ctl.DeleteOrder(ctx, order.ID, ConfirmDelete(order.ID)); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteOrder_WatcherSeesRemoval(t *testing.T) {
	store, order := seeded(t)
	ctl, _ := NewController(store, operator, nil, zaptest.NewLogger(t))

	sub, err := store.Watch(context.Background(), docstore.Filter{ID: order.ID})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer sub.Cancel()
	<-sub.Updates()

	if err := ctl.DeleteOrder(context.Background(), order.ID, ConfirmDelete(order.ID)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case snap := <-sub.Updates():
		if len(snap.Docs) != 0 {
			t.Fatalf("expected empty view after delete, got %+v", snap.Docs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never saw the delete")
	}
}

package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/models"
)

// follow interprets snapshots until the order is removed or missing, or limit
// updates arrived, then cancels sub.
func follow(t *testing.T, sub *feed.Subscription[models.Order], limit int) []Update {
	t.Helper()
	defer sub.Cancel()
	var out []Update
	for len(out) < limit {
		select {
		case snap, ok := <-sub.Updates():
			if !ok {
				return out
			}
			u := Interpret(snap)
			out = append(out, u)
			if u.Removed || u.Missing {
				return out
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d updates", len(out))
		}
	}
	return out
}

func TestLookup_NewestWins(t *testing.T) {
	store := docstore.NewMemory()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	store.Seed(
		models.Order{ID: "a", PhoneNumber: "9876543210", CreatedAt: base},
		models.Order{ID: "c", PhoneNumber: "9876543210", CreatedAt: base.Add(2 * time.Hour)},
		models.Order{ID: "b", PhoneNumber: "9876543210", CreatedAt: base.Add(time.Hour)},
		models.Order{ID: "z", PhoneNumber: "9123456789", CreatedAt: base.Add(5 * time.Hour)},
	)

	got, err := NewTracker(store).Lookup(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != "c" {
		t.Fatalf("expected newest order c, got %s", got.ID)
	}
}

func TestLookup_NotFound(t *testing.T) {
	_, err := NewTracker(docstore.NewMemory()).Lookup(context.Background(), "9876543210")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFollow_StatusSequence(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()
	order, _ := store.Insert(ctx, models.Order{PhoneNumber: "9876543210", Status: models.OrderStatusNew})

	sub, err := NewTracker(store).Follow(ctx, order.ID)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}

	// Follow returns after the initial read, so this write is a later change
	if err := store.UpdateStatus(ctx, order.ID, models.OrderStatusConfirmed); err != nil {
		t.Fatalf("update: %v", err)
	}

	updates := follow(t, sub, 2)
	if len(updates) != 2 || updates[0].Order == nil || updates[1].Order == nil {
		t.Fatalf("expected two order updates, got %+v", updates)
	}
	if updates[0].Order.Status != models.OrderStatusNew || updates[1].Order.Status != models.OrderStatusConfirmed {
		t.Fatalf("expected NEW then CONFIRMED, got %s then %s", updates[0].Order.Status, updates[1].Order.Status)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription should be cancelled")
	}
}

func TestFollow_RemovedSignal(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()
	order, _ := store.Insert(ctx, models.Order{PhoneNumber: "9876543210", Status: models.OrderStatusNew})

	sub, err := NewTracker(store).Follow(ctx, order.ID)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := store.Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	updates := follow(t, sub, 10)
	if len(updates) != 2 || !updates[1].Removed || updates[1].Order != nil {
		t.Fatalf("expected an explicit removal after the initial state, got %+v", updates)
	}
}

func TestFollow_MissingOrder(t *testing.T) {
	sub, err := NewTracker(docstore.NewMemory()).Follow(context.Background(), "gone")
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	updates := follow(t, sub, 10)
	if len(updates) != 1 || !updates[0].Missing {
		t.Fatalf("expected a single missing update, got %+v", updates)
	}
}

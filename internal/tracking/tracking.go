// Package tracking lets a customer find and follow their order.
package tracking

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/models"
)

// Tracker resolves orders by phone and follows them live.
type Tracker struct {
	store docstore.Store
}

func NewTracker(store docstore.Store) *Tracker {
	return &Tracker{store: store}
}

// Lookup returns the newest order placed with phone. The store is not asked
// to order the result; matches are sorted here by created_at.
func (t *Tracker) Lookup(ctx context.Context, phone string) (models.Order, error) {
	orders, err := t.store.Query(ctx, docstore.Filter{Phone: phone})
	if err != nil {
		return models.Order{}, fmt.Errorf("lookup: %w", err)
	}
	if len(orders) == 0 {
		return models.Order{}, docstore.ErrNotFound
	}
	sort.SliceStable(orders, func(i, j int) bool { return docstore.NewestFirst(orders[i], orders[j]) })
	return orders[0], nil
}

// Follow opens a live subscription on one order. The caller must cancel it.
func (t *Tracker) Follow(ctx context.Context, orderID string) (*feed.Subscription[models.Order], error) {
	sub, err := t.store.Watch(ctx, docstore.Filter{ID: orderID})
	if err != nil {
		return nil, fmt.Errorf("follow %s: %w", orderID, err)
	}
	return sub, nil
}

// Update is what a tracking view shows after a snapshot.
type Update struct {
	// Order is the current state; nil when the order is gone.
	Order *models.Order
	// Removed is set when the order was deleted while being followed.
	Removed bool
	// Missing is set when the order did not exist when following began.
	Missing bool
}

// Interpret maps a single-order snapshot to an Update.
func Interpret(snap feed.Snapshot[models.Order]) Update {
	if len(snap.Docs) > 0 {
		order := snap.Docs[0]
		return Update{Order: &order}
	}
	if snap.Initial {
		return Update{Missing: true}
	}
	return Update{Removed: true}
}

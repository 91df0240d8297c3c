// Package docstore persists order documents and exposes the primitives the
// order engine relies on: insert with a generated id, put at an explicit id,
// status update, delete, one-shot query, live watch and atomic batch delete.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/models"
)

var (
	// ErrNotFound is returned when the addressed order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrUnavailable marks failures reaching the backing store. Callers may
	// retry; nothing is assumed committed.
	ErrUnavailable = errors.New("document store unavailable")
)

// Store is the order collection.
type Store interface {
	// Insert stores order under a newly generated id and returns it.
	Insert(ctx context.Context, order models.Order) (models.Order, error)
	// Put stores order under id, replacing any document already there.
	Put(ctx context.Context, id string, order models.Order) (models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, f Filter) ([]models.Order, error)
	// Watch opens a live subscription over the orders matching f.
	Watch(ctx context.Context, f Filter) (*feed.Subscription[models.Order], error)
	// DeleteBatch removes every id or none of them and returns how many
	// documents were actually removed. Ids that do not exist are not counted.
	DeleteBatch(ctx context.Context, ids []string) (int, error)
}

// MaxBatchSize bounds the number of documents one DeleteBatch call may touch.
const MaxBatchSize = 500

// Filter narrows a query or watch. Zero fields do not filter.
type Filter struct {
	ID                 string
	Phone              string
	CreatedAtOrBefore  *time.Time
	OrderByCreatedDesc bool
	Limit              int
}

// Match reports whether order satisfies every set field.
func (f Filter) Match(o models.Order) bool {
	if f.ID != "" && o.ID != f.ID {
		return false
	}
	if f.Phone != "" && o.PhoneNumber != f.Phone {
		return false
	}
	if f.CreatedAtOrBefore != nil && o.CreatedAt.After(*f.CreatedAtOrBefore) {
		return false
	}
	return true
}

// FeedQuery converts the filter into a subscription query.
func (f Filter) FeedQuery() feed.Query[models.Order] {
	q := feed.Query[models.Order]{Match: f.Match, Limit: f.Limit}
	if f.OrderByCreatedDesc {
		q.Less = NewestFirst
	}
	return q
}

// NewestFirst orders by created_at descending.
func NewestFirst(a, b models.Order) bool {
	return a.CreatedAt.After(b.CreatedAt)
}

// OrderID is the identity function used by order hubs.
func OrderID(o models.Order) string {
	return o.ID
}

// Timestamp is the representation used for created_at everywhere: UTC with
// microsecond precision, which round-trips through Postgres unchanged.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("docstore: %s: %w: %w", op, ErrUnavailable, err)
}

func validateBatch(ids []string) error {
	if len(ids) > MaxBatchSize {
		return fmt.Errorf("docstore: batch of %d exceeds limit %d", len(ids), MaxBatchSize)
	}
	return nil
}

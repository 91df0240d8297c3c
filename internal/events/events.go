// Package events announces order lifecycle changes to downstream consumers.
package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/machikart/internal/models"
)

// DeliveryTimeout bounds one detached publish.
const DeliveryTimeout = 10 * time.Second

// Type names an order event.
type Type string

const (
	OrderCreated       Type = "order.created"
	OrderStatusChanged Type = "order.status_changed"
	OrderDeleted       Type = "order.deleted"
	OrdersPurged       Type = "orders.purged"
)

// Event is the payload written to the event stream.
type Event struct {
	Type    Type               `json:"type"`
	OrderID string             `json:"order_id,omitempty"`
	Order   *models.Order      `json:"order,omitempty"`
	Status  models.OrderStatus `json:"order_status,omitempty"`
	Count   int                `json:"count,omitempty"`
	At      time.Time          `json:"at"`
}

// Publisher delivers events. Publishing is best effort: callers log failures
// and never roll back the write that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishDetached hands ev to pub on its own goroutine and returns at once.
// The publish outlives ctx's cancellation but gives up after DeliveryTimeout;
// failures are logged.
func PublishDetached(ctx context.Context, pub Publisher, ev Event, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, DeliveryTimeout)
		defer cancel()
		if err := pub.Publish(ctx, ev); err != nil {
			log.Warn("event not delivered",
				zap.String("type", string(ev.Type)),
				zap.String("order_id", ev.OrderID),
				zap.Error(err),
			)
		}
	}()
}

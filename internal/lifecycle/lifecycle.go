// Package lifecycle applies operator status changes and deletions to orders.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/machikart/internal/access"
	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/metrics"
	"github.com/example/machikart/internal/models"
)

var (
	// ErrUnconfirmed is returned when a delete lacks a matching confirmation.
	ErrUnconfirmed = errors.New("deletion not confirmed")
	// ErrInvalidStatus is returned for a status outside the known set.
	ErrInvalidStatus = errors.New("invalid order status")
)

// Confirmation is the operator's explicit consent to delete one order.
type Confirmation struct {
	orderID string
}

// ConfirmDelete confirms the deletion of orderID.
func ConfirmDelete(orderID string) Confirmation {
	return Confirmation{orderID: orderID}
}

// Controller is the only writer of order status and single deletions.
type Controller struct {
	store  docstore.Store
	grant  access.Grant
	events events.Publisher
	log    *zap.Logger
}

// NewController fails with access.ErrUnauthorized unless grant is authorized.
func NewController(store docstore.Store, grant access.Grant, pub events.Publisher, log *zap.Logger) (*Controller, error) {
	if !grant.Authorized() {
		return nil, access.ErrUnauthorized
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Controller{store: store, grant: grant, events: pub, log: log}, nil
}

// SetStatus writes status unconditionally. Any known status may follow any
// other; concurrent writers resolve as last write wins.
func (c *Controller) SetStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := c.store.UpdateStatus(ctx, orderID, status); err != nil {
		c.log.Error("order status update failed",
			zap.String("order_id", orderID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return fmt.Errorf("set status of %s: %w", orderID, err)
	}

	metrics.StatusChanged(string(status))
	c.log.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
		zap.String("operator", c.grant.Operator),
	)
	c.publish(ctx, events.Event{Type: events.OrderStatusChanged, OrderID: orderID, Status: status})
	return nil
}

// DeleteOrder permanently removes an order. confirm must come from
// ConfirmDelete with the same id.
func (c *Controller) DeleteOrder(ctx context.Context, orderID string, confirm Confirmation) error {
	if orderID == "" || confirm.orderID != orderID {
		return ErrUnconfirmed
	}
	if err := c.store.Delete(ctx, orderID); err != nil {
		c.log.Error("order delete failed", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("delete %s: %w", orderID, err)
	}

	metrics.OrderDeleted()
	c.log.Warn("order deleted", zap.String("order_id", orderID), zap.String("operator", c.grant.Operator))
	c.publish(ctx, events.Event{Type: events.OrderDeleted, OrderID: orderID})
	return nil
}

// publish never blocks the caller; the store write has already happened.
func (c *Controller) publish(ctx context.Context, ev events.Event) {
	events.PublishDetached(ctx, c.events, ev, c.log)
}

package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/machikart/internal/basket"
	"github.com/example/machikart/internal/checkout"
	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/models"
	"github.com/example/machikart/internal/tracking"
)

// OrderHandler manages customer order endpoints.
type OrderHandler struct {
	materializer *checkout.Materializer
	tracker      *tracking.Tracker
	streams      context.Context
	log          *zap.Logger
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(m *checkout.Materializer, t *tracking.Tracker, streams context.Context, log *zap.Logger) *OrderHandler {
	return &OrderHandler{materializer: m, tracker: t, streams: streams, log: log}
}

type createOrderRequest struct {
	checkout.Customer
	Items basket.Basket `json:"items"`
}

// CreateOrder turns the client's basket into an order.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.materializer.Submit(c.UserContext(), req.Items, req.Customer)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    order,
	})
}

// TrackOrder returns the newest order placed with the given phone number.
func (h *OrderHandler) TrackOrder(c *fiber.Ctx) error {
	phone := strings.TrimSpace(c.Query("phone"))
	if phone == "" {
		return fiber.NewError(fiber.StatusBadRequest, "phone is required")
	}

	order, err := h.tracker.Lookup(c.UserContext(), phone)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// StreamOrder follows one order. The stream ends once the order is deleted
// or if it never existed.
func (h *OrderHandler) StreamOrder(c *fiber.Ctx) error {
	id := c.Params("id")
	sub, err := h.tracker.Follow(h.streams, id)
	if err != nil {
		return err
	}

	return stream(c, sub, h.log, func(snap feed.Snapshot[models.Order]) (sseEvent, bool) {
		u := tracking.Interpret(snap)
		switch {
		case u.Missing:
			return sseEvent{Name: "not_found", Data: fiber.Map{"id": id}}, true
		case u.Removed:
			return sseEvent{Name: "removed", Data: fiber.Map{"id": id}}, true
		}
		return sseEvent{Name: "order", Data: u.Order}, false
	})
}

package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/lifecycle"
	"github.com/example/machikart/internal/middleware"
	"github.com/example/machikart/internal/models"
	"github.com/example/machikart/internal/retention"
	"github.com/example/machikart/internal/utils"
)

// AdminHandler manages operator endpoints.
type AdminHandler struct {
	store     docstore.Store
	events    events.Publisher
	batchSize int
	streams   context.Context
	log       *zap.Logger
	now       func() time.Time
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(store docstore.Store, pub events.Publisher, purgeBatchSize int, streams context.Context, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		store:     store,
		events:    pub,
		batchSize: purgeBatchSize,
		streams:   streams,
		log:       log,
		now:       time.Now,
	}
}

// operatorStatuses are the statuses an operator may set from the dashboard.
var operatorStatuses = map[models.OrderStatus]bool{
	models.OrderStatusConfirmed:      true,
	models.OrderStatusOutForDelivery: true,
	models.OrderStatusDelivered:      true,
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	orders, err := h.store.Query(c.UserContext(), docstore.Filter{})
	if err != nil {
		return err
	}

	ordersByStatus := map[models.OrderStatus]int{
		models.OrderStatusNew:            0,
		models.OrderStatusConfirmed:      0,
		models.OrderStatusOutForDelivery: 0,
		models.OrderStatusDelivered:      0,
	}
	totalRevenue := decimal.Zero
	todayRevenue := decimal.Zero
	midnight := h.now().UTC().Truncate(24 * time.Hour)

	for _, o := range orders {
		ordersByStatus[o.Status]++
		amount := decimal.NewFromFloat(o.TotalAmount)
		totalRevenue = totalRevenue.Add(amount)
		if !o.CreatedAt.Before(midnight) {
			todayRevenue = todayRevenue.Add(amount)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_orders":     len(orders),
			"orders_by_status": ordersByStatus,
			"total_revenue":    totalRevenue.Round(2).InexactFloat64(),
			"today_revenue":    todayRevenue.Round(2).InexactFloat64(),
		},
	})
}

// ListOrders returns orders newest first, one page at a time.
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	orders, err := h.store.Query(c.UserContext(), docstore.Filter{OrderByCreatedDesc: true})
	if err != nil {
		return err
	}

	start, end := pg.Window(len(orders))
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       orders[start:end],
		"pagination": pg.Meta(len(orders)),
	})
}

// StreamOrders pushes the full order list, newest first, on every change.
func (h *AdminHandler) StreamOrders(c *fiber.Ctx) error {
	sub, err := h.store.Watch(h.streams, docstore.Filter{OrderByCreatedDesc: true})
	if err != nil {
		return err
	}
	return stream(c, sub, h.log, func(snap feed.Snapshot[models.Order]) (sseEvent, bool) {
		docs := snap.Docs
		if docs == nil {
			docs = []models.Order{}
		}
		return sseEvent{Name: "orders", Data: docs}, false
	})
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// UpdateOrderStatus sets the order's fulfillment status. Any operator status
// may follow any other.
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Status = models.OrderStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if !operatorStatuses[req.Status] {
		return fiber.NewError(fiber.StatusBadRequest, "status must be CONFIRMED, OUT_FOR_DELIVERY or DELIVERED")
	}

	ctrl, err := lifecycle.NewController(h.store, middleware.GetGrant(c), h.events, h.log)
	if err != nil {
		return err
	}

	id := c.Params("id")
	if err := ctrl.SetStatus(c.UserContext(), id, req.Status); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"id": id, "order_status": req.Status},
	})
}

// DeleteOrder permanently removes an order. The confirm query parameter must
// repeat the order id.
func (h *AdminHandler) DeleteOrder(c *fiber.Ctx) error {
	ctrl, err := lifecycle.NewController(h.store, middleware.GetGrant(c), h.events, h.log)
	if err != nil {
		return err
	}

	id := c.Params("id")
	var confirm lifecycle.Confirmation
	if c.Query("confirm") == id {
		confirm = lifecycle.ConfirmDelete(id)
	}
	if err := ctrl.DeleteOrder(c.UserContext(), id, confirm); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"id": id}})
}

type purgeRequest struct {
	Preset  string `json:"preset"`
	Confirm bool   `json:"confirm"`
}

// PurgeOrders deletes every order older than the chosen preset.
func (h *AdminHandler) PurgeOrders(c *fiber.Ctx) error {
	var req purgeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cutoff, err := retention.Preset(strings.ToLower(strings.TrimSpace(req.Preset)), h.now())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	sweeper, err := retention.NewSweeper(h.store, middleware.GetGrant(c), h.batchSize, h.events, h.log)
	if err != nil {
		return err
	}

	var confirm retention.Confirmation
	if req.Confirm {
		confirm = retention.ConfirmPurge(cutoff)
	}
	result, err := sweeper.Purge(c.UserContext(), cutoff, confirm)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": result})
}

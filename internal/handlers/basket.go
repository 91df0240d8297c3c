package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/example/machikart/internal/basket"
	"github.com/example/machikart/internal/catalog"
)

// BasketHandler applies basket operations to a basket held by the client.
// The server keeps no basket state; every call returns the new basket.
type BasketHandler struct {
	catalog *catalog.Catalog
	pricing basket.Pricing
}

// NewBasketHandler constructs BasketHandler.
func NewBasketHandler(cat *catalog.Catalog, pricing basket.Pricing) *BasketHandler {
	return &BasketHandler{catalog: cat, pricing: pricing}
}

type basketRequest struct {
	Basket    basket.Basket `json:"basket"`
	ProductID string        `json:"product_id"`
	Cleaning  bool          `json:"cleaning"`
	Delta     float64       `json:"delta"`
}

func (h *BasketHandler) respond(c *fiber.Ctx, b basket.Basket) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"items": b,
			"total": b.Total(h.pricing).InexactFloat64(),
		},
	})
}

func parseBasketRequest(c *fiber.Ctx, needProduct bool) (basketRequest, error) {
	var req basketRequest
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if needProduct && req.ProductID == "" {
		return req, fiber.NewError(fiber.StatusBadRequest, "product_id is required")
	}
	return req, nil
}

// Add puts one step of a product on sale into the basket.
func (h *BasketHandler) Add(c *fiber.Ctx) error {
	req, err := parseBasketRequest(c, true)
	if err != nil {
		return err
	}
	product, err := h.catalog.Product(c.UserContext(), req.ProductID)
	if err != nil {
		return err
	}
	return h.respond(c, req.Basket.Add(product, req.Cleaning))
}

// Remove drops a slot.
func (h *BasketHandler) Remove(c *fiber.Ctx) error {
	req, err := parseBasketRequest(c, true)
	if err != nil {
		return err
	}
	return h.respond(c, req.Basket.Remove(req.ProductID, req.Cleaning))
}

// Quantity adjusts a slot by a signed delta in kilograms.
func (h *BasketHandler) Quantity(c *fiber.Ctx) error {
	req, err := parseBasketRequest(c, true)
	if err != nil {
		return err
	}
	if req.Delta == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "delta is required")
	}
	return h.respond(c, req.Basket.AdjustQuantity(req.ProductID, req.Cleaning, decimal.NewFromFloat(req.Delta)))
}

// Cleaning flips the cleaning option of a slot.
func (h *BasketHandler) Cleaning(c *fiber.Ctx) error {
	req, err := parseBasketRequest(c, true)
	if err != nil {
		return err
	}
	return h.respond(c, req.Basket.ToggleModifier(req.ProductID, req.Cleaning))
}

// Clear empties the basket.
func (h *BasketHandler) Clear(c *fiber.Ctx) error {
	req, err := parseBasketRequest(c, false)
	if err != nil {
		return err
	}
	return h.respond(c, req.Basket.Clear())
}

package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/machikart/internal/catalog"
	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/models"
)

// ProductHandler serves the storefront catalog.
type ProductHandler struct {
	catalog *catalog.Catalog
	streams context.Context
	log     *zap.Logger
}

// NewProductHandler constructs ProductHandler. Live streams end when streams
// is cancelled.
func NewProductHandler(cat *catalog.Catalog, streams context.Context, log *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: cat, streams: streams, log: log}
}

// RegisterProductRoutes attaches product routes to router.
func (h *ProductHandler) RegisterProductRoutes(router fiber.Router) {
	router.Get("/", h.ListProducts)
	router.Get("/stream", h.StreamProducts)
	router.Get("/:id", h.GetProduct)
}

func productFilter(c *fiber.Ctx) catalog.Filter {
	return catalog.Filter{
		Search:      strings.TrimSpace(c.Query("search")),
		PremiumOnly: strings.EqualFold(c.Query("category"), "premium"),
	}
}

// ListProducts returns products on sale, premium first.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	products, err := h.catalog.Available(c.UserContext(), productFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": products})
}

// GetProduct returns one product that is currently on sale.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	product, err := h.catalog.Product(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": product})
}

// StreamProducts pushes the filtered product list every time it changes.
func (h *ProductHandler) StreamProducts(c *fiber.Ctx) error {
	sub, err := h.catalog.Watch(h.streams, productFilter(c))
	if err != nil {
		return err
	}
	return stream(c, sub, h.log, func(snap feed.Snapshot[models.Product]) (sseEvent, bool) {
		docs := snap.Docs
		if docs == nil {
			docs = []models.Product{}
		}
		return sseEvent{Name: "products", Data: docs}, false
	})
}

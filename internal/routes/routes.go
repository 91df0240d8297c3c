package routes

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/machikart/internal/access"
	"github.com/example/machikart/internal/basket"
	"github.com/example/machikart/internal/catalog"
	"github.com/example/machikart/internal/checkout"
	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/handlers"
	"github.com/example/machikart/internal/metrics"
	"github.com/example/machikart/internal/middleware"
	"github.com/example/machikart/internal/tracking"
)

// Dependencies are the components the HTTP surface is built on.
type Dependencies struct {
	Store          docstore.Store
	Catalog        *catalog.Catalog
	Checkout       *checkout.Materializer
	Gate           *access.Gate
	Events         events.Publisher
	Pricing        basket.Pricing
	PurgeBatchSize int
	// Streams bounds every server-sent event stream; cancel it on shutdown.
	Streams context.Context
	Log     *zap.Logger
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Dependencies) {
	productHandler := handlers.NewProductHandler(deps.Catalog, deps.Streams, deps.Log)
	basketHandler := handlers.NewBasketHandler(deps.Catalog, deps.Pricing)
	orderHandler := handlers.NewOrderHandler(deps.Checkout, tracking.NewTracker(deps.Store), deps.Streams, deps.Log)
	authHandler := handlers.NewAuthHandler(deps.Gate, deps.Log)
	adminHandler := handlers.NewAdminHandler(deps.Store, deps.Events, deps.PurgeBatchSize, deps.Streams, deps.Log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"status": "ok"}})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// Products
	products := api.Group("/products")
	productHandler.RegisterProductRoutes(products)

	// Basket
	basketItems := api.Group("/basket")
	basketItems.Post("/items", basketHandler.Add)
	basketItems.Delete("/items", basketHandler.Remove)
	basketItems.Patch("/items/quantity", basketHandler.Quantity)
	basketItems.Patch("/items/cleaning", basketHandler.Cleaning)
	basketItems.Post("/clear", basketHandler.Clear)

	// Orders
	orders := api.Group("/orders")
	orders.Post("/", orderHandler.CreateOrder)
	orders.Get("/track", orderHandler.TrackOrder)
	orders.Get("/:id/stream", orderHandler.StreamOrder)

	// Operator routes
	admin := api.Group("/admin")
	admin.Post("/login", authHandler.Login)

	protected := admin.Group("", middleware.OperatorMiddleware(deps.Gate))
	protected.Get("/session", authHandler.Session)
	protected.Get("/stats", adminHandler.DashboardStats)
	protected.Get("/orders", adminHandler.ListOrders)
	protected.Get("/orders/stream", adminHandler.StreamOrders)
	protected.Post("/orders/purge", adminHandler.PurgeOrders)
	protected.Patch("/orders/:id/status", adminHandler.UpdateOrderStatus)
	protected.Delete("/orders/:id", adminHandler.DeleteOrder)
}

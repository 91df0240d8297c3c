package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/machikart/internal/access"
	"github.com/example/machikart/internal/basket"
	"github.com/example/machikart/internal/catalog"
	"github.com/example/machikart/internal/checkout"
	"github.com/example/machikart/internal/config"
	"github.com/example/machikart/internal/database"
	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/events"
	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/handlers"
	applog "github.com/example/machikart/internal/logger"
	"github.com/example/machikart/internal/metrics"
	"github.com/example/machikart/internal/models"
	"github.com/example/machikart/internal/routes"
	"github.com/example/machikart/internal/services"
)

func main() {
	cfg := config.Load()

	zlog, err := applog.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, source := openStores(ctx, cfg, zlog)

	catalogOpts := []catalog.Option{catalog.WithWatchObserver(metrics.WatchObserver("catalog"))}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		catalogOpts = append(catalogOpts, catalog.WithCache(catalog.NewRedisCache(rdb, cfg.CatalogTTL)))
		zlog.Info("catalog cache enabled", zap.String("redis", cfg.RedisAddr))
	}
	cat := catalog.New(source, zlog.Named("catalog"), catalogOpts...)
	go cat.Run(ctx, cfg.CatalogPoll)

	publisher := events.Multi{services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, zlog.Named("telegram"))}
	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()
		publisher = append(publisher, events.NewKafka(zlog.Named("events"), writer, cfg.KafkaTopic))
		zlog.Info("order events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	gate, err := access.NewGate(cfg.OperatorPasskey, cfg.JWTSecret, cfg.TokenExpires)
	if err != nil {
		zlog.Fatal("operator gate", zap.Error(err))
	}

	policy, err := checkout.ParseIdentityPolicy(cfg.OrderIDPolicy)
	if err != nil {
		zlog.Fatal("order id policy", zap.Error(err))
	}
	pricing := basket.Pricing{CleaningSurcharge: cfg.CleaningSurcharge}
	materializer := checkout.NewMaterializer(store, policy, zlog.Named("checkout"),
		checkout.WithPricing(pricing),
		checkout.WithPhoneDigits(cfg.PhoneDigits),
		checkout.WithEvents(publisher),
	)

	app := fiber.New(fiber.Config{
		AppName:      "MachiCart Orders",
		ErrorHandler: handlers.ErrorHandler(zlog),
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(metrics.Middleware())

	routes.Register(app, routes.Dependencies{
		Store:          store,
		Catalog:        cat,
		Checkout:       materializer,
		Gate:           gate,
		Events:         publisher,
		Pricing:        pricing,
		PurgeBatchSize: cfg.PurgeBatchSize,
		Streams:        ctx,
		Log:            zlog,
	})

	go func() {
		<-ctx.Done()
		zlog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			zlog.Warn("shutdown", zap.Error(err))
		}
	}()

	zlog.Info("starting server",
		zap.String("port", cfg.AppPort),
		zap.String("store", cfg.StoreBackend),
		zap.String("order_id_policy", string(materializer.Policy())),
	)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		zlog.Fatal("fiber.Listen error", zap.Error(err))
	}
}

// openStores returns the order store and the catalog source for the
// configured backend. The postgres backend also starts the change listener.
func openStores(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (docstore.Store, catalog.Source) {
	if cfg.StoreBackend == "memory" {
		zlog.Warn("using in-memory order store; orders are lost on restart")
		store := docstore.NewMemory(docstore.WithWatchObserver(metrics.WatchObserver("orders")))
		return store, catalog.NewStaticSource(demoProducts()...)
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.AppEnv == "development", zlog)
	if err != nil {
		zlog.Fatal("database", zap.Error(err))
	}
	store := docstore.NewPostgres(db, zlog.Named("docstore"),
		feed.WithObserver[models.Order](metrics.WatchObserver("orders")))

	go func() {
		if err := store.Listen(ctx, cfg.DatabaseURL); err != nil {
			zlog.Error("order listener stopped, live feeds will not update", zap.Error(err))
		}
	}()
	return store, catalog.NewGormSource(db)
}

func demoProducts() []models.Product {
	return []models.Product{
		{FishName: "Pomfret", PricePerKg: 650, Available: true, IsPremium: true},
		{FishName: "Seer Fish", PricePerKg: 900, Available: true, IsPremium: true},
		{FishName: "Mackerel", PricePerKg: 240, Available: true},
		{FishName: "Sardine", PricePerKg: 180, Available: true},
		{FishName: "Prawns", PricePerKg: 520, Available: false},
	}
}

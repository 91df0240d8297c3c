// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "machikart"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	ordersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Orders written at checkout, by identity policy.",
	}, []string{"policy"})

	checkoutRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_rejected_total",
		Help:      "Checkouts rejected by validation, by field.",
	}, []string{"field"})

	statusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_status_changes_total",
		Help:      "Operator status changes, by target status.",
	}, []string{"status"})

	ordersDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_deleted_total",
		Help:      "Orders deleted individually by an operator.",
	})

	ordersPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_purged_total",
		Help:      "Orders removed by retention purges.",
	})

	purgeBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purge_batches_total",
		Help:      "Retention purge batches, by result.",
	}, []string{"result"})

	activeWatches = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_watches",
		Help:      "Live subscriptions, by feed.",
	}, []string{"feed"})

	catalogCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_cache_requests_total",
		Help:      "Catalog product cache lookups, by result.",
	}, []string{"result"})
)

func OrderCreated(policy string)    { ordersCreated.WithLabelValues(policy).Inc() }
func CheckoutRejected(field string) { checkoutRejected.WithLabelValues(field).Inc() }
func StatusChanged(status string)   { statusChanges.WithLabelValues(status).Inc() }
func OrderDeleted()                 { ordersDeleted.Inc() }
func OrdersPurged(n int)            { ordersPurged.Add(float64(n)) }
func PurgeBatch(result string)      { purgeBatches.WithLabelValues(result).Inc() }
func CatalogCache(result string)    { catalogCache.WithLabelValues(result).Inc() }

// WatchObserver returns a callback for feed.WithObserver that tracks the
// number of live subscriptions of one feed.
func WatchObserver(feed string) func(active int) {
	gauge := activeWatches.WithLabelValues(feed)
	return func(active int) { gauge.Set(float64(active)) }
}

// Middleware records request counts and latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			// resolve the error now so the recorded status is the one sent
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		route := c.Route().Path
		status := strconv.Itoa(c.Response().StatusCode())
		httpRequests.WithLabelValues(c.Method(), route, status).Inc()
		httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return nil
	}
}

// Handler exposes the default registry.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsResolvedStatus(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/missing/:id", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "nope")
	})

	counter := httpRequests.WithLabelValues("GET", "/missing/:id", "404")
	before := testutil.ToFloat64(counter)

	resp, err := app.Test(httptest.NewRequest("GET", "/missing/42", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("expected one recorded 404, got %v", got)
	}
}

func TestWatchObserver(t *testing.T) {
	observe := WatchObserver("test")
	observe(3)
	if got := testutil.ToFloat64(activeWatches.WithLabelValues("test")); got != 3 {
		t.Fatalf("expected gauge 3, got %v", got)
	}
	observe(0)
	if got := testutil.ToFloat64(activeWatches.WithLabelValues("test")); got != 0 {
		t.Fatalf("expected gauge 0, got %v", got)
	}
}

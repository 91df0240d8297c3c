// Package catalog is the read-only view of the product catalog: listings for
// customers, single product lookups for the basket, and a live availability
// feed driven by polling the catalog store.
package catalog

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/metrics"
	"github.com/example/machikart/internal/models"
)

var (
	// ErrNotFound is returned for unknown products.
	ErrNotFound = errors.New("product not found")
	// ErrNotAvailable is returned when a product exists but is not on sale.
	ErrNotAvailable = errors.New("product not available")
)

// Filter narrows a listing.
type Filter struct {
	Search      string
	PremiumOnly bool
}

// Catalog serves products from a Source.
type Catalog struct {
	source Source
	cache  Cache
	hub    *feed.Hub[models.Product]
	log    *zap.Logger

	mu    sync.Mutex
	known map[string]models.Product
}

type Option func(*Catalog)

// WithCache puts a read-through cache in front of single product reads.
func WithCache(c Cache) Option {
	return func(cat *Catalog) { cat.cache = c }
}

// WithWatchObserver reports the number of live catalog feeds.
func WithWatchObserver(fn func(active int)) Option {
	return func(cat *Catalog) {
		cat.hub = feed.NewHub(productID, feed.WithObserver[models.Product](fn))
	}
}

func New(source Source, log *zap.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		source: source,
		cache:  noCache{},
		hub:    feed.NewHub(productID),
		log:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func productID(p models.Product) string { return p.Key() }

// PremiumFirst orders premium products before the rest, then by name.
func PremiumFirst(a, b models.Product) bool {
	if a.IsPremium != b.IsPremium {
		return a.IsPremium
	}
	return strings.ToLower(a.FishName) < strings.ToLower(b.FishName)
}

func (f Filter) match(p models.Product) bool {
	if !p.Available {
		return false
	}
	if f.PremiumOnly && !p.IsPremium {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		return strings.Contains(strings.ToLower(p.FishName), strings.ToLower(q))
	}
	return true
}

// Available lists products on sale matching f, premium first.
func (c *Catalog) Available(ctx context.Context, f Filter) ([]models.Product, error) {
	all, err := c.source.Products(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(all))
	for _, p := range all {
		if f.match(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return PremiumFirst(out[i], out[j]) })
	return out, nil
}

// Product returns a product that is currently on sale.
func (c *Catalog) Product(ctx context.Context, id string) (models.Product, error) {
	p, ok, err := c.cache.Get(ctx, id)
	switch {
	case err != nil:
		c.log.Debug("catalog cache read failed", zap.String("product_id", id), zap.Error(err))
		metrics.CatalogCache("error")
	case ok:
		metrics.CatalogCache("hit")
	default:
		metrics.CatalogCache("miss")
	}

	if !ok {
		if p, err = c.source.Product(ctx, id); err != nil {
			return models.Product{}, err
		}
		if err := c.cache.Set(ctx, p); err != nil {
			c.log.Debug("catalog cache write failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	if !p.Available {
		return models.Product{}, ErrNotAvailable
	}
	return p, nil
}

// Watch follows the available products matching f. Changes appear after the
// next poll of Run.
func (c *Catalog) Watch(ctx context.Context, f Filter) (*feed.Subscription[models.Product], error) {
	q := feed.Query[models.Product]{Match: f.match, Less: PremiumFirst}
	return c.hub.Subscribe(ctx, q, c.source.Products)
}

// Refresh reads the catalog once and publishes what changed since the last
// refresh. Cached copies of changed products are dropped.
func (c *Catalog) Refresh(ctx context.Context) error {
	products, err := c.source.Products(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]models.Product, len(products))
	var changes []feed.Change[models.Product]
	for _, p := range products {
		id := p.Key()
		next[id] = p
		old, had := c.known[id]
		switch {
		case !had:
			changes = append(changes, feed.Change[models.Product]{Kind: feed.Added, ID: id, Doc: p})
		case !reflect.DeepEqual(old, p):
			changes = append(changes, feed.Change[models.Product]{Kind: feed.Modified, ID: id, Doc: p})
		}
	}
	for id := range c.known {
		if _, ok := next[id]; !ok {
			changes = append(changes, feed.Change[models.Product]{Kind: feed.Removed, ID: id})
		}
	}

	// the first refresh only learns the catalog
	if c.known != nil {
		for _, ch := range changes {
			if err := c.cache.Delete(ctx, ch.ID); err != nil {
				c.log.Debug("catalog cache invalidation failed", zap.String("product_id", ch.ID), zap.Error(err))
			}
		}
	}
	c.known = next
	c.hub.Publish(changes...)
	return nil
}

// Run polls the catalog every interval until ctx is done.
func (c *Catalog) Run(ctx context.Context, interval time.Duration) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn("catalog refresh failed", zap.Error(err))
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("catalog poller stopping")
			return
		case <-t.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.Warn("catalog refresh failed", zap.Error(err))
			}
		}
	}
}

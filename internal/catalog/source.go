package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/machikart/internal/models"
)

// Source reads products from the catalog store. It never writes.
type Source interface {
	// Products returns every product, available or not.
	Products(ctx context.Context) ([]models.Product, error)
	Product(ctx context.Context, id string) (models.Product, error)
}

// GormSource reads the products table.
type GormSource struct {
	db *gorm.DB
}

func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db}
}

func (s *GormSource) Products(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Order("fish_name asc").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (s *GormSource) Product(ctx context.Context, id string) (models.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Product{}, ErrNotFound
	}
	var product models.Product
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Product{}, ErrNotFound
	}
	if err != nil {
		return models.Product{}, err
	}
	return product, nil
}

// StaticSource is an in-process catalog, used with the memory order store.
type StaticSource struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

func NewStaticSource(products ...models.Product) *StaticSource {
	s := &StaticSource{products: make(map[string]models.Product, len(products))}
	s.Set(products...)
	return s
}

// Set adds or replaces products. Products without an id get one.
func (s *StaticSource) Set(products ...models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		s.products[p.Key()] = p
	}
}

func (s *StaticSource) Products(ctx context.Context) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].FishName) < strings.ToLower(out[j].FishName)
	})
	return out, nil
}

func (s *StaticSource) Product(ctx context.Context, id string) (models.Product, error) {
	if err := ctx.Err(); err != nil {
		return models.Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, ErrNotFound
	}
	return p, nil
}

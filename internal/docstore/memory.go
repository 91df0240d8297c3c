package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/machikart/internal/feed"
	"github.com/example/machikart/internal/models"
)

// Memory is a process-local Store. It backs tests and single-instance
// deployments started with STORE_BACKEND=memory.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]models.Order
	hub  *feed.Hub[models.Order]

	now       func() time.Time
	newID     func() string
	batchHook func(index int, id string) error
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithIDGenerator overrides generated order ids.
func WithIDGenerator(fn func() string) MemoryOption {
	return func(m *Memory) { m.newID = fn }
}

// WithBatchHook runs fn for every document staged by DeleteBatch. A non-nil
// error aborts the whole batch before anything is removed.
func WithBatchHook(fn func(index int, id string) error) MemoryOption {
	return func(m *Memory) { m.batchHook = fn }
}

// WithWatchObserver reports the number of live watches whenever it changes.
func WithWatchObserver(fn func(active int)) MemoryOption {
	return func(m *Memory) {
		m.hub = feed.NewHub(OrderID, feed.WithObserver[models.Order](fn))
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		docs:  make(map[string]models.Order),
		hub:   feed.NewHub(OrderID),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Insert(ctx context.Context, order models.Order) (models.Order, error) {
	if err := ctx.Err(); err != nil {
		return models.Order{}, unavailable("insert", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	order = order.Clone()
	order.ID = m.newID()
	order.CreatedAt = Timestamp(m.now())
	m.docs[order.ID] = order
	m.hub.Publish(feed.Change[models.Order]{Kind: feed.Added, ID: order.ID, Doc: order.Clone()})
	return order.Clone(), nil
}

func (m *Memory) Put(ctx context.Context, id string, order models.Order) (models.Order, error) {
	if err := ctx.Err(); err != nil {
		return models.Order{}, unavailable("put", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := feed.Added
	if _, ok := m.docs[id]; ok {
		kind = feed.Modified
	}
	order = order.Clone()
	order.ID = id
	order.CreatedAt = Timestamp(m.now())
	m.docs[id] = order
	m.hub.Publish(feed.Change[models.Order]{Kind: kind, ID: id, Doc: order.Clone()})
	return order.Clone(), nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	if err := ctx.Err(); err != nil {
		return unavailable("update status", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	m.docs[id] = order
	m.hub.Publish(feed.Change[models.Order]{Kind: feed.Modified, ID: id, Doc: order.Clone()})
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	m.hub.Publish(feed.Change[models.Order]{Kind: feed.Removed, ID: id})
	return nil
}

func (m *Memory) Query(ctx context.Context, f Filter) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("query", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Order, 0)
	for _, order := range m.docs {
		if f.Match(order) {
			out = append(out, order.Clone())
		}
	}
	if f.OrderByCreatedDesc {
		sort.SliceStable(out, func(i, j int) bool { return NewestFirst(out[i], out[j]) })
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Watch(ctx context.Context, f Filter) (*feed.Subscription[models.Order], error) {
	return m.hub.Subscribe(ctx, f.FeedQuery(), func(ctx context.Context) ([]models.Order, error) {
		return m.Query(ctx, Filter{ID: f.ID, Phone: f.Phone, CreatedAtOrBefore: f.CreatedAtOrBefore})
	})
}

// DeleteBatch removes ids atomically and reports how many existed. Ids that
// no longer exist are skipped.
func (m *Memory) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	if err := validateBatch(ids); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, unavailable("delete batch", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make([]string, 0, len(ids))
	for i, id := range ids {
		if m.batchHook != nil {
			if err := m.batchHook(i, id); err != nil {
				return 0, unavailable("delete batch", err)
			}
		}
		if _, ok := m.docs[id]; ok {
			staged = append(staged, id)
		}
	}

	changes := make([]feed.Change[models.Order], 0, len(staged))
	for _, id := range staged {
		delete(m.docs, id)
		changes = append(changes, feed.Change[models.Order]{Kind: feed.Removed, ID: id})
	}
	m.hub.Publish(changes...)
	return len(staged), nil
}

// Seed stores orders as-is, keeping their ids and timestamps. Used to load
// fixtures and history.
func (m *Memory) Seed(orders ...models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range orders {
		order = order.Clone()
		order.CreatedAt = Timestamp(order.CreatedAt)
		m.docs[order.ID] = order
		m.hub.Publish(feed.Change[models.Order]{Kind: feed.Added, ID: order.ID, Doc: order.Clone()})
	}
}

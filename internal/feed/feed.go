// Package feed fans document changes out to live subscribers.
//
// A Hub is fed with Changes in the order a store applied them. Each
// Subscription watches a filtered, ordered view of the documents: it first
// receives the full initial result set and then one Snapshot for every change
// that touches its view, until it is cancelled. The same machinery backs the
// customer order tracker, the operator dashboard and the catalog feed.
package feed

import (
	"context"
	"errors"
	"sync"
)

// ChangeKind describes what happened to a document.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change is a single document mutation. Doc is the zero value for Removed
// changes published by a store.
type Change[T any] struct {
	Kind ChangeKind
	ID   string
	Doc  T
}

// Snapshot is what a subscriber receives: the complete current view plus the
// changes that produced it.
type Snapshot[T any] struct {
	Docs    []T
	Changes []Change[T]
	Initial bool
}

// Query selects and orders the documents a subscription watches.
type Query[T any] struct {
	Match func(T) bool
	Less  func(a, b T) bool
	Limit int
}

func (q Query[T]) matches(doc T) bool {
	return q.Match == nil || q.Match(doc)
}

// Loader produces the current result set of a query.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Option configures a Hub.
type Option[T any] func(*Hub[T])

// WithObserver registers a callback invoked with the number of active
// subscriptions whenever it changes.
func WithObserver[T any](fn func(active int)) Option[T] {
	return func(h *Hub[T]) { h.observe = fn }
}

// Hub distributes published changes to every subscription.
type Hub[T any] struct {
	idOf    func(T) string
	observe func(active int)

	mu   sync.Mutex
	subs map[uint64]*Subscription[T]
	next uint64
}

// NewHub creates a hub; idOf extracts a document's identity.
func NewHub[T any](idOf func(T) string, opts ...Option[T]) *Hub[T] {
	h := &Hub[T]{idOf: idOf, subs: make(map[uint64]*Subscription[T])}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscription, loads its initial view and starts
// delivery. Changes published while load runs are buffered and replayed after
// the initial snapshot. The subscription ends when ctx is done or Cancel is
// called.
func (h *Hub[T]) Subscribe(ctx context.Context, q Query[T], load Loader[T]) (*Subscription[T], error) {
	if load == nil {
		return nil, errors.New("feed: nil loader")
	}
	s := newSubscription(h, q, load)

	h.mu.Lock()
	h.next++
	s.id = h.next
	h.subs[s.id] = s
	active := len(h.subs)
	h.mu.Unlock()
	h.notify(active)

	docs, err := load(ctx)
	if err != nil {
		s.Cancel()
		return nil, err
	}
	s.seed(docs)

	go s.pump()
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.done:
		}
	}()
	return s, nil
}

// Publish hands changes to every subscription. Callers must publish in the
// order the changes were applied; Publish never blocks on slow subscribers.
func (h *Hub[T]) Publish(changes ...Change[T]) {
	if len(changes) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		s.apply(changes)
	}
}

// Resync reloads every subscription and emits whatever differs from its
// current view. Used after the change source may have missed events.
// Changes published while a subscription reloads are held back and applied
// on top of the reloaded view.
func (h *Hub[T]) Resync(ctx context.Context) error {
	h.mu.Lock()
	subs := make([]*Subscription[T], 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if !s.hold() {
			continue
		}
		docs, err := s.load(ctx)
		if err != nil {
			s.release()
			errs = append(errs, err)
			continue
		}
		s.settle(docs, false)
	}
	return errors.Join(errs...)
}

// Len returns the number of active subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	active := len(h.subs)
	h.mu.Unlock()
	h.notify(active)
}

func (h *Hub[T]) notify(active int) {
	if h.observe != nil {
		h.observe(active)
	}
}

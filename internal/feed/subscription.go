package feed

import (
	"iter"
	"reflect"
	"sort"
	"sync"
)

// Subscription is a live, cancelable view over a Hub.
type Subscription[T any] struct {
	hub  *Hub[T]
	id   uint64
	q    Query[T]
	load Loader[T]

	mu      sync.Mutex
	ready   bool
	pending [][]Change[T]
	view    map[string]T
	queue   []Snapshot[T]

	wake chan struct{}
	out  chan Snapshot[T]
	done chan struct{}
	once sync.Once
}

func newSubscription[T any](h *Hub[T], q Query[T], load Loader[T]) *Subscription[T] {
	return &Subscription[T]{
		hub:  h,
		q:    q,
		load: load,
		view: make(map[string]T),
		wake: make(chan struct{}, 1),
		out:  make(chan Snapshot[T]),
		done: make(chan struct{}),
	}
}

// Updates delivers snapshots in order. The channel is closed after Cancel.
func (s *Subscription[T]) Updates() <-chan Snapshot[T] {
	return s.out
}

// All returns the snapshots as a lazy sequence. Stopping the iteration early
// cancels the subscription.
func (s *Subscription[T]) All() iter.Seq[Snapshot[T]] {
	return func(yield func(Snapshot[T]) bool) {
		for snap := range s.out {
			if !yield(snap) {
				s.Cancel()
				return
			}
		}
	}
}

// Done is closed once the subscription has been cancelled.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Cancel stops delivery and detaches the subscription from its hub. It is
// safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s.id)
	})
}

func (s *Subscription[T]) apply(changes []Change[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		s.pending = append(s.pending, changes)
		return
	}
	s.applyLocked(changes)
}

func (s *Subscription[T]) seed(docs []T) {
	s.settle(docs, true)
}

// hold starts buffering changes ahead of a reload. It reports false while
// the initial load is still running.
func (s *Subscription[T]) hold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	s.ready = false
	return true
}

// settle replaces the view with docs and replays what was buffered since
// hold, so a change published during the load is never lost to it.
func (s *Subscription[T]) settle(docs []T, initial bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(docs, initial)
	s.replayLocked()
}

// release ends a hold without reloading.
func (s *Subscription[T]) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replayLocked()
}

func (s *Subscription[T]) replayLocked() {
	s.ready = true
	for _, changes := range s.pending {
		s.applyLocked(changes)
	}
	s.pending = nil
}

func (s *Subscription[T]) applyLocked(changes []Change[T]) {
	var emitted []Change[T]
	for _, c := range changes {
		old, had := s.view[c.ID]
		switch {
		case c.Kind == Removed:
			if !had {
				continue
			}
			delete(s.view, c.ID)
			emitted = append(emitted, Change[T]{Kind: Removed, ID: c.ID, Doc: old})
		case s.q.matches(c.Doc):
			if had && reflect.DeepEqual(old, c.Doc) {
				continue
			}
			kind := Added
			if had {
				kind = Modified
			}
			s.view[c.ID] = c.Doc
			emitted = append(emitted, Change[T]{Kind: kind, ID: c.ID, Doc: c.Doc})
		case had:
			// the document no longer matches the query
			delete(s.view, c.ID)
			emitted = append(emitted, Change[T]{Kind: Removed, ID: c.ID, Doc: old})
		}
	}
	if len(emitted) == 0 {
		return
	}
	s.enqueue(Snapshot[T]{Docs: s.docsLocked(), Changes: emitted})
}

func (s *Subscription[T]) resetLocked(docs []T, initial bool) {
	next := make(map[string]T, len(docs))
	var changes []Change[T]
	for _, doc := range docs {
		if !s.q.matches(doc) {
			continue
		}
		id := s.hub.idOf(doc)
		next[id] = doc
		old, had := s.view[id]
		switch {
		case !had:
			changes = append(changes, Change[T]{Kind: Added, ID: id, Doc: doc})
		case !reflect.DeepEqual(old, doc):
			changes = append(changes, Change[T]{Kind: Modified, ID: id, Doc: doc})
		}
	}
	for id, old := range s.view {
		if _, ok := next[id]; !ok {
			changes = append(changes, Change[T]{Kind: Removed, ID: id, Doc: old})
		}
	}
	s.view = next
	if initial || len(changes) > 0 {
		s.enqueue(Snapshot[T]{Docs: s.docsLocked(), Changes: changes, Initial: initial})
	}
}

func (s *Subscription[T]) docsLocked() []T {
	docs := make([]T, 0, len(s.view))
	for _, doc := range s.view {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if s.q.Less != nil {
			if s.q.Less(docs[i], docs[j]) {
				return true
			}
			if s.q.Less(docs[j], docs[i]) {
				return false
			}
		}
		return s.hub.idOf(docs[i]) < s.hub.idOf(docs[j])
	})
	if s.q.Limit > 0 && len(docs) > s.q.Limit {
		docs = docs[:s.q.Limit]
	}
	return docs
}

func (s *Subscription[T]) enqueue(snap Snapshot[T]) {
	s.queue = append(s.queue, snap)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = Snapshot[T]{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}

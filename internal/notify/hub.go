// Package notify fans out post-commit change notifications to subscribers.
package notify

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type Topic int

const (
	TopicCatalog Topic = iota + 1
	TopicCart
	TopicOrders
	TopicFavorites
	TopicReviews
)

func (t Topic) String() string {
	switch t {
	case TopicCatalog:
		return "catalog"
	case TopicCart:
		return "cart"
	case TopicOrders:
		return "orders"
	case TopicFavorites:
		return "favorites"
	case TopicReviews:
		return "reviews"
	default:
		return "unknown"
	}
}

// Change describes one committed mutation. UserID is set for cart, order
// and favorite changes, ProductIDs for catalog and review changes.
type Change struct {
	Topic      Topic
	UserID     uuid.UUID
	ProductIDs []uuid.UUID
}

// Filter selects the changes a subscriber is interested in.
type Filter func(Change) bool

func Any() Filter { return func(Change) bool { return true } }

func ForTopic(topic Topic) Filter {
	return func(c Change) bool { return c.Topic == topic }
}

func ForUser(topic Topic, userID uuid.UUID) Filter {
	return func(c Change) bool { return c.Topic == topic && c.UserID == userID }
}

// Or matches when any of the filters match.
func Or(filters ...Filter) Filter {
	return func(c Change) bool {
		for _, f := range filters {
			if f(c) {
				return true
			}
		}
		return false
	}
}

const defaultBuffer = 64

type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: defaultBuffer}
}

// Subscribe registers a subscriber. The returned subscription must be closed
// when no longer needed.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	if filter == nil {
		filter = Any()
	}
	s := &Subscription{
		hub:    h,
		filter: filter,
		ch:     make(chan Change, h.buffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish delivers changes without blocking. A subscriber whose buffer is
// full misses the change and is marked as lagged.
func (h *Hub) Publish(changes ...Change) {
	if h == nil || len(changes) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		for _, c := range changes {
			if !s.filter(c) {
				continue
			}
			select {
			case s.ch <- c:
			default:
				s.lagged.Store(true)
			}
		}
	}
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type Subscription struct {
	hub    *Hub
	filter Filter
	ch     chan Change
	lagged atomic.Bool
	once   sync.Once
}

// C is closed after Close.
func (s *Subscription) C() <-chan Change { return s.ch }

// Lagged reports, and resets, whether changes were dropped since the last
// call.
func (s *Subscription) Lagged() bool { return s.lagged.Swap(false) }

func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// Batch buffers the changes of one transaction until it commits.
type Batch struct {
	mu      sync.Mutex
	changes []Change
}

func (b *Batch) Record(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.changes {
		if merged, ok := merge(b.changes[i], c); ok {
			b.changes[i] = merged
			return
		}
	}
	b.changes = append(b.changes, c)
}

// Flush publishes the buffered changes and empties the batch.
func (b *Batch) Flush(h *Hub) {
	b.mu.Lock()
	changes := b.changes
	b.changes = nil
	b.mu.Unlock()
	h.Publish(changes...)
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.changes)
}

func merge(a, b Change) (Change, bool) {
	if a.Topic != b.Topic || a.UserID != b.UserID {
		return a, false
	}
	ids := slices.Clone(a.ProductIDs)
	for _, id := range b.ProductIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	a.ProductIDs = ids
	return a, true
}

// Direct publishes every recorded change immediately. It backs writes made
// outside a transaction.
type Direct struct{ Hub *Hub }

func (d Direct) Record(c Change) { d.Hub.Publish(c) }

// Recorder is implemented by Batch and Direct.
type Recorder interface {
	Record(Change)
}

// Package store holds the in-memory entity collections that back every
// operation manager, plus the per-domain operation statistics.
//
// An EntityStore is an ordered collection with lookup by identifier. It is
// deliberately not goroutine-safe: each store is exclusively owned by one
// operation manager, which serializes every mutation, local optimistic edits
// and realtime reconciliation alike, through the same lock. The correctness
// of the sync protocol lives in that sequencing, not in the store.
package store

import (
	"github.com/VishalT25/companion-sync/pkg/models"
)

// Op tags the kind of mutation reported to subscribers.
type Op int

const (
	// OpUpsert reports an insert or an in-place replacement.
	OpUpsert Op = iota
	// OpRemove reports a removal.
	OpRemove
	// OpReplace reports a wholesale replacement of the collection.
	OpReplace
)

// Change describes a single store mutation. For OpReplace, Record is the zero
// value and subscribers should re-read the store.
type Change[T models.Record] struct {
	Op     Op
	Record T
}

// EntityStore is an ordered, in-memory collection of one entity type with
// lookup by identifier. Every mutation is reported synchronously to
// subscribers before the mutating call returns, so observers always see
// optimistic state immediately.
type EntityStore[T models.Record] struct {
	items []T
	index map[string]int
	subs  []func(Change[T])
}

// New returns an empty store.
func New[T models.Record]() *EntityStore[T] {
	return &EntityStore[T]{index: make(map[string]int)}
}

// Subscribe registers fn to be invoked synchronously on every mutation.
// Subscriptions cannot be removed; they live as long as the store.
func (s *EntityStore[T]) Subscribe(fn func(Change[T])) {
	s.subs = append(s.subs, fn)
}

func (s *EntityStore[T]) notify(c Change[T]) {
	for _, fn := range s.subs {
		fn(c)
	}
}

// All returns the collection in insertion order. The returned slice is a copy;
// mutating it does not affect the store.
func (s *EntityStore[T]) All() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of records held.
func (s *EntityStore[T]) Len() int { return len(s.items) }

// Get returns the record stored under id.
func (s *EntityStore[T]) Get(id string) (T, bool) {
	if i, ok := s.index[id]; ok {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// Upsert replaces the record with the same identifier in place, or appends it
// if absent. Identifier uniqueness is maintained by construction.
func (s *EntityStore[T]) Upsert(item T) {
	if i, ok := s.index[item.Key()]; ok {
		s.items[i] = item
	} else {
		s.index[item.Key()] = len(s.items)
		s.items = append(s.items, item)
	}
	s.notify(Change[T]{Op: OpUpsert, Record: item})
}

// Remove deletes the record stored under id and returns it. Order of the
// remaining records is preserved.
func (s *EntityStore[T]) Remove(id string) (T, bool) {
	i, ok := s.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	removed := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].Key()] = j
	}
	s.notify(Change[T]{Op: OpRemove, Record: removed})
	return removed, true
}

// RemoveWhere deletes every record matching pred and returns the removed
// records in their former order. Used for cascade deletes.
func (s *EntityStore[T]) RemoveWhere(pred func(T) bool) []T {
	var removed []T
	kept := s.items[:0]
	for _, item := range s.items {
		if pred(item) {
			removed = append(removed, item)
		} else {
			kept = append(kept, item)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	s.items = kept
	s.index = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.index[item.Key()] = i
	}
	for _, item := range removed {
		s.notify(Change[T]{Op: OpRemove, Record: item})
	}
	return removed
}

// Replace swaps the whole collection for items, keeping their given order.
// Used for cache bootstrap, full reloads, and realtime SYNC events.
func (s *EntityStore[T]) Replace(items []T) {
	s.items = make([]T, 0, len(items))
	s.index = make(map[string]int, len(items))
	for _, item := range items {
		if _, dup := s.index[item.Key()]; dup {
			continue
		}
		s.index[item.Key()] = len(s.items)
		s.items = append(s.items, item)
	}
	s.notify(Change[T]{Op: OpReplace})
}

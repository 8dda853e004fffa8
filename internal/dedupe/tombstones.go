// ABOUTME: Size-bounded set of retired message ids with oldest-first eviction
// ABOUTME: Used by the message store to reject ids that were replaced or rolled back

package dedupe

import (
	"container/list"
	"sync"
)

// DefaultCapacity bounds a Tombstones set when New is given a non-positive size.
const DefaultCapacity = 4096

// Tombstones is a thread-safe set of retired ids. When full, the id retired
// longest ago is evicted first. A doubly-linked list keeps eviction O(1).
type Tombstones struct {
	mu      sync.RWMutex
	retired map[string]*list.Element
	order   *list.List // oldest at front
	maxSize int
}

// New creates an empty set holding at most maxSize ids.
func New(maxSize int) *Tombstones {
	if maxSize <= 0 {
		maxSize = DefaultCapacity
	}
	return &Tombstones{
		retired: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Retired reports whether id has been retired.
func (t *Tombstones) Retired(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.retired[id]
	return ok
}

// Retire records id. Retiring an id twice refreshes its position.
func (t *Tombstones) Retire(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retireLocked(id)
}

// Clear empties the set.
func (t *Tombstones) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.retired)
	t.order.Init()
}

// Len returns the number of retired ids currently tracked.
func (t *Tombstones) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.retired)
}

// retireLocked must be called with mu held.
func (t *Tombstones) retireLocked(id string) {
	if elem, ok := t.retired[id]; ok {
		t.order.MoveToBack(elem)
		return
	}
	if len(t.retired) >= t.maxSize {
		t.evictOldest()
	}
	t.retired[id] = t.order.PushBack(id)
}

// evictOldest must be called with mu held.
func (t *Tombstones) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	t.order.Remove(front)
	delete(t.retired, id)
}

// ABOUTME: In-memory message store for the active conversation
// ABOUTME: Stable CreatedAt ordering, idempotent mutations, and synchronous change notification

package store

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/dedupe"
)

// ChangeKind identifies the mutation that produced a Change.
type ChangeKind string

const (
	ChangeUpsert  ChangeKind = "upsert"
	ChangeReplace ChangeKind = "replace"
	ChangeRemove  ChangeKind = "remove"
	ChangePatch   ChangeKind = "patch"
	ChangeReset   ChangeKind = "reset"
)

// Change describes one effective mutation.
type Change struct {
	Kind  ChangeKind
	IDs   []string
	OldID string // set for ChangeReplace
}

// Observer receives changes synchronously.
type Observer func(Change)

// Patch is a shallow, field-level update. Nil fields are left alone.
// A non-nil Reactions map replaces the stored map entirely; pass an empty
// map to clear it. DeliveredAt and ReadAt are write-once.
type Patch struct {
	Reactions   map[string]string
	DeliveredAt *time.Time
	ReadAt      *time.Time
	Pending     *bool
	Failed      *bool
}

type entry struct {
	msg *chat.Message
	seq uint64
}

// MessageStore is safe for concurrent use.
type MessageStore struct {
	mu        sync.RWMutex
	entries   []*entry // sorted by (CreatedAt, seq)
	byID      map[string]*entry
	nextSeq   uint64
	retired   *dedupe.Tombstones
	observers map[int]Observer
	nextObs   int
}

// New creates an empty store. retiredCapacity bounds the number of
// tombstoned ids; non-positive values use dedupe.DefaultCapacity.
func New(retiredCapacity int) *MessageStore {
	return &MessageStore{
		byID:      make(map[string]*entry),
		retired:   dedupe.New(retiredCapacity),
		observers: make(map[int]Observer),
	}
}

// Observe registers fn and returns a function that unregisters it.
func (s *MessageStore) Observe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Upsert inserts msg if its id is unseen, otherwise replaces the stored
// message in place. Receipts and reactions already on the stored message
// survive the replacement (see keepEstablished). Retired ids are refused.
// Reports whether anything changed.
func (s *MessageStore) Upsert(msg chat.Message) bool {
	if msg.ID == "" {
		return false
	}
	s.mu.Lock()
	changed := s.upsertLocked(msg.Clone())
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeUpsert, IDs: []string{msg.ID}})
	}
	return changed
}

func (s *MessageStore) upsertLocked(msg *chat.Message) bool {
	if s.retired.Retired(msg.ID) {
		return false
	}
	if e, ok := s.byID[msg.ID]; ok {
		keepEstablished(e.msg, msg)
		if e.msg.Equal(msg) {
			return false
		}
		reorder := !e.msg.CreatedAt.Equal(msg.CreatedAt)
		e.msg = msg
		if reorder {
			s.sortLocked()
		}
		return true
	}
	e := &entry{msg: msg, seq: s.nextSeq}
	s.nextSeq++
	s.byID[msg.ID] = e
	s.insertLocked(e)
	return true
}

// RemoveByID deletes the message with id. Removed temporary ids are retired.
func (s *MessageStore) RemoveByID(id string) bool {
	s.mu.Lock()
	_, ok := s.byID[id]
	if ok {
		s.removeLocked(id)
	}
	if chat.IsTempID(id) {
		s.retired.Retire(id)
	}
	s.mu.Unlock()

	if ok {
		s.notify(Change{Kind: ChangeRemove, IDs: []string{id}})
	}
	return ok
}

// ReplaceID swaps the message stored under oldID for msg, keeping the old
// entry's insertion slot. If msg.ID is already present the old entry is
// dropped and the existing one updated, so no id is ever duplicated. oldID
// is retired either way.
func (s *MessageStore) ReplaceID(oldID string, msg chat.Message) bool {
	if msg.ID == "" {
		return false
	}
	if oldID == msg.ID {
		return s.Upsert(msg)
	}

	next := msg.Clone()
	s.mu.Lock()
	old, hadOld := s.byID[oldID]
	var changed bool
	switch existing, hasNew := s.byID[msg.ID]; {
	case hadOld && hasNew:
		s.removeLocked(oldID)
		keepEstablished(existing.msg, next)
		existing.msg = next
		s.sortLocked()
		changed = true
	case hadOld:
		delete(s.byID, oldID)
		replacement := &entry{msg: next, seq: old.seq}
		s.byID[msg.ID] = replacement
		s.entries = slices.DeleteFunc(s.entries, func(e *entry) bool { return e == old })
		s.insertLocked(replacement)
		changed = true
	default:
		changed = s.upsertLocked(next)
	}
	s.retired.Retire(oldID)
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeReplace, IDs: []string{msg.ID}, OldID: oldID})
	}
	return changed
}

// Patch merges p into the message with id. No-op when id is absent.
func (s *MessageStore) Patch(id string, p Patch) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	changed := ok && applyPatch(e, p)
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangePatch, IDs: []string{id}})
	}
	return changed
}

// PatchWhere applies p to every message matching pred and returns the ids
// that changed, in display order. Observers receive a single change.
func (s *MessageStore) PatchWhere(pred func(*chat.Message) bool, p Patch) []string {
	s.mu.Lock()
	var ids []string
	for _, e := range s.entries {
		if pred(e.msg) && applyPatch(e, p) {
			ids = append(ids, e.msg.ID)
		}
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.notify(Change{Kind: ChangePatch, IDs: ids})
	}
	return ids
}

// Get returns a copy of the message with id.
func (s *MessageStore) Get(id string) (*chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.msg.Clone(), true
}

// Messages returns a deep copy of the collection in display order.
func (s *MessageStore) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e.msg.Clone()
	}
	return out
}

// ids returns message ids in display order.
func (s *MessageStore) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.msg.ID
	}
	return out
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// isRetired reports whether id has been tombstoned.
func (s *MessageStore) isRetired(id string) bool {
	return s.retired.Retired(id)
}

// Reset discards every message and tombstone.
func (s *MessageStore) Reset() {
	s.mu.Lock()
	had := len(s.entries) > 0 || s.retired.Len() > 0
	s.entries = nil
	clear(s.byID)
	s.retired.Clear()
	s.nextSeq = 0
	s.mu.Unlock()

	if had {
		s.notify(Change{Kind: ChangeReset})
	}
}

func (s *MessageStore) notify(c Change) {
	s.mu.RLock()
	observers := slices.Collect(maps.Values(s.observers))
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(c)
	}
}

// removeLocked must be called with mu held.
func (s *MessageStore) removeLocked(id string) {
	e := s.byID[id]
	delete(s.byID, id)
	s.entries = slices.DeleteFunc(s.entries, func(x *entry) bool { return x == e })
}

// insertLocked places e at its sorted position. Must be called with mu held.
func (s *MessageStore) insertLocked(e *entry) {
	i, _ := slices.BinarySearchFunc(s.entries, e, compareEntries)
	s.entries = slices.Insert(s.entries, i, e)
}

// sortLocked must be called with mu held.
func (s *MessageStore) sortLocked() {
	slices.SortFunc(s.entries, compareEntries)
}

func compareEntries(a, b *entry) int {
	if c := a.msg.CreatedAt.Compare(b.msg.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// keepEstablished copies onto next what the stored message already holds and
// a re-delivered copy may lack. Receipts are write-once, so a stored
// timestamp always wins. A non-empty stored reaction map was set by a
// reaction event or response and is newer than an echo or a history page.
func keepEstablished(stored, next *chat.Message) {
	if stored.DeliveredAt != nil {
		t := *stored.DeliveredAt
		next.DeliveredAt = &t
	}
	if stored.ReadAt != nil {
		t := *stored.ReadAt
		next.ReadAt = &t
	}
	if len(stored.Reactions) > 0 {
		next.Reactions = maps.Clone(stored.Reactions)
	}
}

func applyPatch(e *entry, p Patch) bool {
	m := e.msg
	changed := false
	if p.Reactions != nil && !maps.Equal(m.Reactions, p.Reactions) {
		m.Reactions = maps.Clone(p.Reactions)
		changed = true
	}
	if p.DeliveredAt != nil && m.DeliveredAt == nil {
		t := *p.DeliveredAt
		m.DeliveredAt = &t
		changed = true
	}
	if p.ReadAt != nil && m.ReadAt == nil {
		t := *p.ReadAt
		m.ReadAt = &t
		changed = true
	}
	if p.Pending != nil && m.Pending != *p.Pending {
		m.Pending = *p.Pending
		changed = true
	}
	if p.Failed != nil && m.Failed != *p.Failed {
		m.Failed = *p.Failed
		changed = true
	}
	return changed
}

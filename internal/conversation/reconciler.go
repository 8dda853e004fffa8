// ABOUTME: Applies realtime events to the active conversation
// ABOUTME: Matches strictly by id, drops malformed or stale events with a log line

package conversation

import (
	"errors"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/store"
)

// accept validates ev and checks its generation. It records the metric and
// logs for rejected events. Loop only.
func (e *Engine) accept(gen uint64, kind chat.EventKind, validate func() error) bool {
	if err := validate(); err != nil {
		var merr *chat.MalformedEventError
		if errors.As(err, &merr) {
			e.logger.Warn("dropping malformed event", "kind", merr.Kind, "reason", merr.Reason)
		}
		e.metrics.event(string(kind), resultMalformed)
		return false
	}
	if !e.current(gen) {
		e.logger.Debug("dropping stale event", "kind", kind, "generation", gen, "active_generation", e.generation)
		e.metrics.event(string(kind), resultStale)
		return false
	}
	return true
}

func (e *Engine) record(kind chat.EventKind, applied bool) {
	if applied {
		e.metrics.event(string(kind), resultApplied)
	} else {
		e.metrics.event(string(kind), resultIgnored)
	}
}

func (e *Engine) applyMessageCreated(gen uint64, ev chat.MessageCreated) {
	if !e.accept(gen, chat.KindMessageCreated, ev.Validate) {
		return
	}
	m := e.normalize(ev.Message)
	if m.SenderID != e.peerID && m.ReceiverID != e.peerID {
		e.record(chat.KindMessageCreated, false)
		return
	}

	_, existed := e.store.Get(m.ID)
	applied := e.store.Upsert(m)
	e.record(chat.KindMessageCreated, applied)

	if applied && !existed && m.SenderID == e.peerID && e.notifier != nil && e.notify.Load() {
		e.notifier.MessageReceived(m)
	}
}

func (e *Engine) applyReactionChanged(gen uint64, ev chat.ReactionChanged) {
	if !e.accept(gen, chat.KindReactionChanged, ev.Validate) {
		return
	}
	reactions := ev.Reactions
	if reactions == nil {
		reactions = map[string]string{}
	}
	e.record(chat.KindReactionChanged, e.store.Patch(ev.MessageID, store.Patch{Reactions: reactions}))
}

func (e *Engine) applyDeliveryConfirmed(gen uint64, ev chat.DeliveryConfirmed) {
	if !e.accept(gen, chat.KindDeliveryConfirmed, ev.Validate) {
		return
	}
	at := ev.DeliveredAt
	e.record(chat.KindDeliveryConfirmed, e.store.Patch(ev.MessageID, store.Patch{DeliveredAt: &at}))
}

// applyReadConfirmed marks every confirmed message I sent to the reader as read.
func (e *Engine) applyReadConfirmed(gen uint64, ev chat.ReadConfirmed) {
	if !e.accept(gen, chat.KindReadConfirmed, ev.Validate) {
		return
	}
	if ev.PeerID != e.peerID {
		e.record(chat.KindReadConfirmed, false)
		return
	}
	at := ev.ReadAt
	self, peer := e.cfg.SelfID, e.peerID
	ids := e.store.PatchWhere(func(m *chat.Message) bool {
		return m.SenderID == self && m.ReceiverID == peer && m.ReadAt == nil && !m.Pending
	}, store.Patch{ReadAt: &at})
	e.record(chat.KindReadConfirmed, len(ids) > 0)
}

func (e *Engine) applyPeerTyping(gen uint64, ev chat.PeerTyping) {
	if !e.accept(gen, chat.KindPeerTyping, ev.Validate) {
		return
	}
	if ev.PeerID != e.peerID {
		e.record(chat.KindPeerTyping, false)
		return
	}
	changed := e.typing.SetPeerTyping(ev.PeerID, ev.IsTyping)
	e.record(chat.KindPeerTyping, changed)
	if changed {
		e.publishTyping()
	}
}

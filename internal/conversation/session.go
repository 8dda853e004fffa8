// ABOUTME: Conversation selection state machine: Idle, Loading, Subscribed
// ABOUTME: Switching tears down the old subscription before anything of the new peer is applied

package conversation

import (
	"context"
	"errors"

	"github.com/2389/coven-chat/internal/chat"
)

// Select makes peerID the active conversation. The previous handler table
// is detached, the typing timer cancelled without a stop signal, and the
// message store and typing set cleared before the new table is attached.
// History is merged by upsert, then the peer's messages are marked read.
// Selecting the active peer again is a no-op.
//
// Attach, history and mark-read failures are joined into the returned
// error; the session still reaches Subscribed.
func (e *Engine) Select(ctx context.Context, peerID string) error {
	if peerID == "" {
		return &chat.ValidationError{Err: chat.ErrNoActiveConversation, Detail: "peer id is required"}
	}

	var (
		gen       uint64
		same      bool
		attachErr error
	)
	err := e.do(ctx, func() {
		if e.peerID == peerID && e.phase != PhaseIdle {
			same = true
			return
		}
		e.teardown()

		e.generation++
		gen = e.generation
		e.peerID = peerID
		e.phase = PhaseLoading
		e.loading = true
		e.typing.SetPeer(peerID)
		e.store.Reset()

		sub, err := e.stream.Attach(e.handlersFor(gen))
		if err != nil {
			attachErr = &chat.TransportError{Op: "attach event stream", Err: err}
			e.logger.Error("failed to attach event stream", "peer_id", peerID, "error", err)
		} else {
			e.sub = sub
		}

		e.metrics.sessionSwitched()
		e.publishStatus()
		e.logger.Info("conversation selected", "peer_id", peerID, "generation", gen)
	})
	if err != nil {
		return err
	}
	if same {
		return nil
	}

	history, fetchErr := e.transport.FetchHistory(ctx, peerID)

	var historyErr error
	stale := false
	err = e.do(context.WithoutCancel(ctx), func() {
		if !e.current(gen) {
			stale = true
			return
		}
		if fetchErr != nil {
			historyErr = &chat.TransportError{Op: "fetch history", Err: fetchErr}
		} else {
			for _, m := range history {
				m = e.normalize(m)
				if !m.BelongsTo(peerID) {
					continue
				}
				e.store.Upsert(m)
			}
		}
		e.loading = false
		e.phase = PhaseSubscribed
		e.publishStatus()
	})
	if err != nil {
		return errors.Join(attachErr, err)
	}
	if stale {
		e.logger.Debug("dropping stale history", "peer_id", peerID, "generation", gen)
		return attachErr
	}
	if historyErr != nil {
		e.logger.Warn("history fetch failed", "peer_id", peerID, "error", fetchErr)
		return errors.Join(attachErr, historyErr)
	}

	var readErr error
	if err := e.transport.MarkRead(ctx, peerID); err != nil {
		readErr = &chat.TransportError{Op: "mark read", Err: err}
		e.logger.Warn("mark read failed", "peer_id", peerID, "error", err)
	}

	e.logger.Debug("history loaded", "peer_id", peerID, "messages", len(history))
	return errors.Join(attachErr, readErr)
}

// Deselect returns the engine to Idle.
func (e *Engine) Deselect(ctx context.Context) error {
	return e.do(ctx, func() {
		if e.phase == PhaseIdle {
			return
		}
		prev := e.peerID
		e.teardown()
		e.generation++
		e.peerID = ""
		e.phase = PhaseIdle
		e.loading = false
		e.typing.SetPeer("")
		e.store.Reset()
		e.metrics.sessionSwitched()
		e.publishStatus()
		e.logger.Info("conversation closed", "peer_id", prev)
	})
}

// teardown detaches the handler table and clears per-conversation typing
// state. Loop only.
func (e *Engine) teardown() {
	if e.sub != nil {
		e.sub.Detach()
		e.sub = nil
	}
	e.typing.Cancel()
	if e.typing.Reset() {
		e.publishTyping()
	}
}

// handlersFor binds a handler table to one session generation. Callbacks
// only queue work; the generation is checked again on the loop.
func (e *Engine) handlersFor(gen uint64) *Handlers {
	return &Handlers{
		MessageCreated: func(ev chat.MessageCreated) {
			e.post(func() { e.applyMessageCreated(gen, ev) })
		},
		ReactionChanged: func(ev chat.ReactionChanged) {
			e.post(func() { e.applyReactionChanged(gen, ev) })
		},
		DeliveryConfirmed: func(ev chat.DeliveryConfirmed) {
			e.post(func() { e.applyDeliveryConfirmed(gen, ev) })
		},
		ReadConfirmed: func(ev chat.ReadConfirmed) {
			e.post(func() { e.applyReadConfirmed(gen, ev) })
		},
		PeerTyping: func(ev chat.PeerTyping) {
			e.post(func() { e.applyPeerTyping(gen, ev) })
		},
	}
}

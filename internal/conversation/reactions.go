// ABOUTME: Reaction toggling with one transport call per user action
// ABOUTME: The server's reaction map replaces the local one; failures leave it untouched

package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/store"
)

// ReactionIntent is what a reaction action means given the current state.
type ReactionIntent string

const (
	ReactionAdd     ReactionIntent = "add"
	ReactionReplace ReactionIntent = "replace"
	ReactionRemove  ReactionIntent = "remove"
	ReactionNone    ReactionIntent = "none"
)

// intentFor decides how choosing emoji changes a reaction currently set to current.
func intentFor(current, emoji string) ReactionIntent {
	switch {
	case current == "":
		return ReactionAdd
	case current == emoji:
		return ReactionRemove
	default:
		return ReactionReplace
	}
}

// SetReaction reacts to messageID with emoji. Choosing the emoji already
// held removes it. Returns the intent that was sent to the server.
func (e *Engine) SetReaction(ctx context.Context, messageID, emoji string) (ReactionIntent, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return e.RemoveReaction(ctx, messageID)
	}
	return e.react(ctx, messageID, func(current string) (string, ReactionIntent) {
		return emoji, intentFor(current, emoji)
	})
}

// RemoveReaction clears the local user's reaction on messageID. It makes no
// network call when there is nothing to remove.
func (e *Engine) RemoveReaction(ctx context.Context, messageID string) (ReactionIntent, error) {
	return e.react(ctx, messageID, func(current string) (string, ReactionIntent) {
		if current == "" {
			return "", ReactionNone
		}
		return current, ReactionRemove
	})
}

// react resolves the intent on the loop, calls the server once, and applies
// the returned map if the session is still current.
func (e *Engine) react(ctx context.Context, messageID string, decide func(current string) (string, ReactionIntent)) (ReactionIntent, error) {
	var (
		gen     uint64
		opID    string
		send    string
		intent  ReactionIntent
		invalid error
	)
	err := e.do(ctx, func() {
		if e.phase == PhaseIdle {
			invalid = chat.Invalid(chat.ErrNoActiveConversation)
			return
		}
		msg, ok := e.store.Get(messageID)
		if !ok {
			invalid = chat.Invalid(chat.ErrMessageNotFound)
			return
		}
		if msg.Pending || chat.IsTempID(msg.ID) {
			invalid = &chat.ValidationError{Err: chat.ErrMessageNotFound, Detail: "message is not confirmed yet"}
			return
		}

		current := msg.ReactionBy(e.cfg.SelfID)
		send, intent = decide(current)
		if intent == ReactionNone {
			return
		}
		gen = e.generation
		opID = uuid.New().String()
		e.track(opID, &pendingOp{kind: opReaction, target: messageID, generation: gen, started: time.Now(), prior: current})
	})
	if err != nil {
		return ReactionNone, err
	}
	if invalid != nil {
		return ReactionNone, invalid
	}
	if intent == ReactionNone {
		return ReactionNone, nil
	}

	reactions, callErr := e.transport.SetReaction(ctx, messageID, send)

	err = e.do(context.WithoutCancel(ctx), func() {
		op := e.untrack(opID)
		if !e.current(gen) {
			e.metrics.reactionResolved(intent, resultStale)
			e.logger.Debug("dropping stale reaction result", "message_id", messageID)
			return
		}
		if callErr != nil {
			e.metrics.reactionResolved(intent, resultFailed)
			if op != nil {
				e.logger.Warn("reaction failed, keeping previous reaction",
					"message_id", messageID, "previous", op.prior, "error", callErr)
			}
			return
		}
		if reactions == nil {
			reactions = map[string]string{}
		}
		e.store.Patch(messageID, store.Patch{Reactions: reactions})
		e.metrics.reactionResolved(intent, resultOK)
	})
	if err != nil {
		return intent, err
	}
	if callErr != nil {
		return intent, &chat.TransportError{Op: "set reaction", Err: callErr}
	}
	return intent, nil
}

// ABOUTME: Optimistic send: insert under a temp id, then confirm or roll back
// ABOUTME: Only the sender swaps temp ids for server ids; completions check the session generation

package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/2389/coven-chat/internal/chat"
)

var errEmptyResponse = errors.New("server returned no message")

// Send validates draft, inserts an optimistic message and sends it. On
// success the optimistic entry is swapped for the server's message, which
// is returned. On failure the entry is removed and a *chat.SendFailedError
// is returned. Failed sends are never retried.
func (e *Engine) Send(ctx context.Context, draft chat.Draft) (*chat.Message, error) {
	var (
		peer    string
		gen     uint64
		temp    chat.Message
		invalid error
	)
	err := e.do(ctx, func() {
		switch {
		case e.phase == PhaseIdle:
			invalid = chat.Invalid(chat.ErrNoActiveConversation)
			return
		case draft.IsEmpty():
			invalid = chat.Invalid(chat.ErrEmptyMessage)
			return
		}
		if err := draft.Media.Validate(); err != nil {
			invalid = err
			return
		}

		peer, gen = e.peerID, e.generation
		temp = chat.Message{
			ID:         e.newTempID(),
			PeerID:     peer,
			SenderID:   e.cfg.SelfID,
			ReceiverID: peer,
			Text:       draft.TrimmedText(),
			Media:      draft.Media,
			ReplyToID:  draft.ReplyToID,
			ReplyTo:    e.replyPreview(draft.ReplyToID),
			CreatedAt:  e.clock.Now(),
			Reactions:  map[string]string{},
			Pending:    true,
		}
		e.store.Upsert(temp)
		e.track(temp.ID, &pendingOp{kind: opSend, target: temp.ID, generation: gen, started: time.Now()})
		e.logger.Debug("optimistic message inserted", "temp_id", temp.ID, "peer_id", peer)
	})
	if err != nil {
		return nil, err
	}
	if invalid != nil {
		return nil, invalid
	}

	server, sendErr := e.transport.SendMessage(ctx, peer, chat.SendPayload{
		TempID:    temp.ID,
		Text:      temp.Text,
		Media:     draft.Media,
		ReplyToID: draft.ReplyToID,
	})
	if sendErr == nil && (server == nil || server.ID == "") {
		sendErr = errEmptyResponse
	}

	var (
		confirmed *chat.Message
		stale     bool
	)
	err = e.do(context.WithoutCancel(ctx), func() {
		op := e.untrack(temp.ID)
		elapsed := time.Duration(0)
		if op != nil {
			elapsed = time.Since(op.started)
		}

		if !e.current(gen) {
			stale = true
			e.metrics.sendResolved(resultStale, elapsed)
			return
		}
		if sendErr != nil {
			e.store.RemoveByID(temp.ID)
			e.metrics.sendResolved(resultFailed, elapsed)
			return
		}

		msg := e.normalize(*server)
		e.store.ReplaceID(temp.ID, msg)
		if got, ok := e.store.Get(msg.ID); ok {
			confirmed = got
		} else {
			confirmed = &msg
		}
		e.metrics.sendResolved(resultOK, elapsed)
	})
	if err != nil {
		return nil, err
	}

	if sendErr != nil {
		e.logger.Warn("send failed", "temp_id", temp.ID, "peer_id", peer, "stale", stale, "error", sendErr)
		return nil, &chat.SendFailedError{
			TransportError: chat.TransportError{Op: "send message", Err: sendErr},
			TempID:         temp.ID,
		}
	}
	if stale {
		e.logger.Debug("send confirmed after conversation switch", "temp_id", temp.ID, "message_id", server.ID)
		msg := e.normalize(*server)
		return &msg, nil
	}

	e.logger.Debug("message confirmed", "temp_id", temp.ID, "message_id", confirmed.ID)
	return confirmed, nil
}

// replyPreview builds a local preview of the replied-to message for the
// optimistic entry. Loop only.
func (e *Engine) replyPreview(id string) *chat.ReplyPreview {
	if id == "" {
		return nil
	}
	target, ok := e.store.Get(id)
	if !ok {
		return nil
	}
	p := &chat.ReplyPreview{SenderID: target.SenderID, Text: target.Text}
	if target.Media != nil {
		p.MediaKind = target.Media.Kind
	}
	return p
}

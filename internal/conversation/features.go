// ABOUTME: Pass-through operations for contacts and AI features
// ABOUTME: Errors from collaborators are wrapped as transport errors and never retried

package conversation

import (
	"context"

	"github.com/2389/coven-chat/internal/chat"
)

// Contacts lists every user the local account can message.
func (e *Engine) Contacts(ctx context.Context) ([]chat.Contact, error) {
	if e.directory == nil {
		return nil, ErrNoDirectory
	}
	contacts, err := e.directory.Contacts(ctx)
	if err != nil {
		return nil, &chat.TransportError{Op: "list contacts", Err: err}
	}
	return contacts, nil
}

// ChatPartners lists users the local account already has conversations with.
func (e *Engine) ChatPartners(ctx context.Context) ([]chat.Contact, error) {
	if e.directory == nil {
		return nil, ErrNoDirectory
	}
	partners, err := e.directory.ChatPartners(ctx)
	if err != nil {
		return nil, &chat.TransportError{Op: "list chat partners", Err: err}
	}
	return partners, nil
}

// SmartReplies suggests short replies for the active conversation.
func (e *Engine) SmartReplies(ctx context.Context) ([]string, error) {
	if e.assistant == nil {
		return nil, ErrNoAssistant
	}
	history, err := e.activeHistory(ctx)
	if err != nil {
		return nil, err
	}
	replies, err := e.assistant.SmartReplies(ctx, e.cfg.SelfID, history)
	if err != nil {
		return nil, &chat.TransportError{Op: "smart replies", Err: err}
	}
	return replies, nil
}

// Summarize summarizes the active conversation.
func (e *Engine) Summarize(ctx context.Context) (string, error) {
	if e.assistant == nil {
		return "", ErrNoAssistant
	}
	history, err := e.activeHistory(ctx)
	if err != nil {
		return "", err
	}
	summary, err := e.assistant.Summarize(ctx, history)
	if err != nil {
		return "", &chat.TransportError{Op: "summarize", Err: err}
	}
	return summary, nil
}

// Translate translates text into targetLang.
func (e *Engine) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if e.assistant == nil {
		return "", ErrNoAssistant
	}
	out, err := e.assistant.Translate(ctx, text, targetLang)
	if err != nil {
		return "", &chat.TransportError{Op: "translate", Err: err}
	}
	return out, nil
}

func (e *Engine) activeHistory(ctx context.Context) ([]chat.Message, error) {
	var (
		history []chat.Message
		idle    bool
	)
	err := e.do(ctx, func() {
		idle = e.phase == PhaseIdle
		if !idle {
			history = e.store.Messages()
		}
	})
	if err != nil {
		return nil, err
	}
	if idle {
		return nil, chat.Invalid(chat.ErrNoActiveConversation)
	}
	return history, nil
}

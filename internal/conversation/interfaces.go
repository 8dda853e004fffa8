// ABOUTME: Collaborator contracts the engine depends on
// ABOUTME: REST transport, contact directory, realtime event stream, assistant, and notifier

package conversation

import (
	"context"

	"github.com/2389/coven-chat/internal/chat"
)

// Transport is the request/response side of the chat server.
type Transport interface {
	FetchHistory(ctx context.Context, peerID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, peerID string, payload chat.SendPayload) (*chat.Message, error)
	// SetReaction toggles emoji for the local user and returns the
	// message's full reaction map after the change.
	SetReaction(ctx context.Context, messageID, emoji string) (map[string]string, error)
	MarkRead(ctx context.Context, peerID string) error
}

// Directory lists people the local user can talk to.
type Directory interface {
	Contacts(ctx context.Context) ([]chat.Contact, error)
	ChatPartners(ctx context.Context) ([]chat.Contact, error)
}

// Handlers is the table of inbound event callbacks. It is attached and
// detached as a unit so a conversation never sees a partial set.
type Handlers struct {
	MessageCreated    func(chat.MessageCreated)
	ReactionChanged   func(chat.ReactionChanged)
	DeliveryConfirmed func(chat.DeliveryConfirmed)
	ReadConfirmed     func(chat.ReadConfirmed)
	PeerTyping        func(chat.PeerTyping)
}

// Subscription is returned by EventStream.Attach.
type Subscription interface {
	// Detach stops delivery to the attached table. Safe to call more than once.
	Detach()
}

// EventStream is the bidirectional realtime channel.
type EventStream interface {
	Attach(h *Handlers) (Subscription, error)
	Emit(ctx context.Context, s chat.Signal) error
}

// Assistant backs the AI features. Implementations receive a snapshot of
// the active conversation and must not retain it.
type Assistant interface {
	SmartReplies(ctx context.Context, selfID string, history []chat.Message) ([]string, error)
	Translate(ctx context.Context, text, targetLang string) (string, error)
	Summarize(ctx context.Context, history []chat.Message) (string, error)
}

// Notifier is told about new messages from the active peer.
type Notifier interface {
	MessageReceived(msg chat.Message)
}

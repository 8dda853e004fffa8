// ABOUTME: Message, Draft and conversation state types for one-to-one chat
// ABOUTME: Includes temp-id helpers and deep-copy support for store snapshots

package chat

import (
	"maps"
	"strings"
	"time"
)

// TempIDPrefix marks client-generated ids that await server assignment.
const TempIDPrefix = "temp-"

// IsTempID reports whether id was generated locally for an optimistic message.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ReplyPreview is the server-provided summary of the message being replied to.
type ReplyPreview struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Text       string    `json:"text,omitempty"`
	MediaKind  MediaKind `json:"mediaKind,omitempty"`
}

// Message is a single chat message in a one-to-one conversation.
type Message struct {
	ID          string            `json:"id"`
	PeerID      string            `json:"peerId"`
	SenderID    string            `json:"senderId"`
	ReceiverID  string            `json:"receiverId"`
	Text        string            `json:"text,omitempty"`
	Media       *MediaRef         `json:"media,omitempty"`
	ReplyToID   string            `json:"replyToId,omitempty"`
	ReplyTo     *ReplyPreview     `json:"replyTo,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	DeliveredAt *time.Time        `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time        `json:"readAt,omitempty"`
	Reactions   map[string]string `json:"reactions,omitempty"`
	Pending     bool              `json:"pending,omitempty"`
	Failed      bool              `json:"failed,omitempty"`
}

// Clone returns a deep copy so snapshots handed to observers cannot alias
// the store's internal state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Media != nil {
		media := *m.Media
		out.Media = &media
	}
	if m.ReplyTo != nil {
		reply := *m.ReplyTo
		out.ReplyTo = &reply
	}
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		out.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		out.ReadAt = &t
	}
	out.Reactions = maps.Clone(m.Reactions)
	return &out
}

// ReactionBy returns the emoji userID reacted with, or "".
func (m *Message) ReactionBy(userID string) string {
	if m == nil || m.Reactions == nil {
		return ""
	}
	return m.Reactions[userID]
}

// SentBy reports whether the message was authored by userID.
func (m *Message) SentBy(userID string) bool {
	return m != nil && m.SenderID == userID
}

// BelongsTo reports whether the message is part of the conversation with peerID.
func (m *Message) BelongsTo(peerID string) bool {
	if m == nil || peerID == "" {
		return false
	}
	return m.PeerID == peerID || m.SenderID == peerID || m.ReceiverID == peerID
}

// Draft is what the user composed and asked to send.
type Draft struct {
	Text      string
	Media     *MediaRef
	ReplyToID string
}

// TrimmedText returns the draft text without surrounding whitespace.
func (d Draft) TrimmedText() string {
	return strings.TrimSpace(d.Text)
}

// IsEmpty reports whether the draft has neither text nor media.
func (d Draft) IsEmpty() bool {
	return d.TrimmedText() == "" && d.Media == nil
}

// SendPayload is handed to the transport for an outbound message.
type SendPayload struct {
	TempID    string
	Text      string
	Media     *MediaRef
	ReplyToID string
}

// Contact is a user the local account can talk to.
type Contact struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Equal reports whether two messages carry the same content and state.
// The media upload source is ignored.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.ID != o.ID || m.PeerID != o.PeerID || m.SenderID != o.SenderID ||
		m.ReceiverID != o.ReceiverID || m.Text != o.Text || m.ReplyToID != o.ReplyToID ||
		m.Pending != o.Pending || m.Failed != o.Failed {
		return false
	}
	if !m.CreatedAt.Equal(o.CreatedAt) || !timeEqual(m.DeliveredAt, o.DeliveredAt) || !timeEqual(m.ReadAt, o.ReadAt) {
		return false
	}
	if !mediaEqual(m.Media, o.Media) {
		return false
	}
	if (m.ReplyTo == nil) != (o.ReplyTo == nil) || (m.ReplyTo != nil && *m.ReplyTo != *o.ReplyTo) {
		return false
	}
	return maps.Equal(m.Reactions, o.Reactions)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func mediaEqual(a, b *MediaRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind == b.Kind && a.Name == b.Name && a.ContentType == b.ContentType &&
		a.Size == b.Size && a.URL == b.URL
}

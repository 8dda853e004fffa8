// ABOUTME: Inbound realtime events and outbound signals for the sync engine
// ABOUTME: Each event validates its own required fields before it is applied

package chat

import "time"

// EventKind names an inbound event type.
type EventKind string

const (
	KindMessageCreated    EventKind = "message_created"
	KindReactionChanged   EventKind = "reaction_changed"
	KindDeliveryConfirmed EventKind = "delivery_confirmed"
	KindReadConfirmed     EventKind = "read_confirmed"
	KindPeerTyping        EventKind = "peer_typing"
)

// MessageCreated announces a message authored by either party.
type MessageCreated struct {
	Message Message
}

// Validate reports a MalformedEventError when required fields are missing.
func (e MessageCreated) Validate() error {
	switch {
	case e.Message.ID == "":
		return malformed(KindMessageCreated, "missing message id")
	case e.Message.SenderID == "":
		return malformed(KindMessageCreated, "missing sender id")
	case e.Message.ReceiverID == "":
		return malformed(KindMessageCreated, "missing receiver id")
	}
	return nil
}

// ReactionChanged carries the full, authoritative reaction map of a message.
type ReactionChanged struct {
	MessageID string
	Reactions map[string]string
}

func (e ReactionChanged) Validate() error {
	if e.MessageID == "" {
		return malformed(KindReactionChanged, "missing message id")
	}
	return nil
}

// DeliveryConfirmed reports the moment the server delivered a message.
type DeliveryConfirmed struct {
	MessageID   string
	DeliveredAt time.Time
}

func (e DeliveryConfirmed) Validate() error {
	if e.MessageID == "" {
		return malformed(KindDeliveryConfirmed, "missing message id")
	}
	if e.DeliveredAt.IsZero() {
		return malformed(KindDeliveryConfirmed, "missing delivery time")
	}
	return nil
}

// ReadConfirmed reports that PeerID has read everything sent to them up to ReadAt.
type ReadConfirmed struct {
	PeerID string
	ReadAt time.Time
}

func (e ReadConfirmed) Validate() error {
	if e.PeerID == "" {
		return malformed(KindReadConfirmed, "missing peer id")
	}
	if e.ReadAt.IsZero() {
		return malformed(KindReadConfirmed, "missing read time")
	}
	return nil
}

// PeerTyping toggles the remote typing indicator for PeerID.
type PeerTyping struct {
	PeerID   string
	IsTyping bool
}

func (e PeerTyping) Validate() error {
	if e.PeerID == "" {
		return malformed(KindPeerTyping, "missing peer id")
	}
	return nil
}

// SignalKind names an outbound signal.
type SignalKind string

const (
	SignalTyping     SignalKind = "typing"
	SignalStopTyping SignalKind = "stopTyping"
)

// Signal is emitted on the event stream toward a peer.
type Signal struct {
	Kind   SignalKind
	PeerID string
}

func malformed(kind EventKind, reason string) error {
	return &MalformedEventError{Kind: kind, Reason: reason}
}

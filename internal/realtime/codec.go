// ABOUTME: Encodes outbound signals and decodes inbound event frames
// ABOUTME: Inbound payloads are read with gjson and validated before dispatch

package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/wire"
)

// Server event names.
const (
	EventNewMessage      = "newMessage"
	EventUserTyping      = "userTyping"
	EventMessageReaction = "messageReaction"
	EventDelivered       = "messageDelivered"
	EventMessagesRead    = "messagesRead"
	EventOnlineUsers     = "getOnlineUsers"
)

var (
	// ErrMalformedFrame is returned for frames that are not a JSON envelope.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrInvalidSignal is returned by Emit for signals that cannot be encoded.
	ErrInvalidSignal = errors.New("invalid signal")
)

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type receiverPayload struct {
	ReceiverID string `json:"receiverId"`
}

func encodeSignal(s chat.Signal) ([]byte, error) {
	switch s.Kind {
	case chat.SignalTyping, chat.SignalStopTyping:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSignal, s.Kind)
	}
	if s.PeerID == "" {
		return nil, fmt.Errorf("%w: missing peer", ErrInvalidSignal)
	}
	return json.Marshal(frame{Event: string(s.Kind), Data: receiverPayload{ReceiverID: s.PeerID}})
}

// presence is the decoded form of getOnlineUsers.
type presence struct {
	Online []string
}

// decodeFrame returns the event name and its typed payload. Unknown events
// decode to a nil payload and no error.
func decodeFrame(data []byte) (string, any, error) {
	if !gjson.ValidBytes(data) {
		return "", nil, ErrMalformedFrame
	}
	root := gjson.ParseBytes(data)
	name := root.Get("event").String()
	if name == "" {
		return "", nil, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	body := root.Get("data")

	switch name {
	case EventNewMessage:
		msg, err := wire.MessageFrom(body)
		if err != nil {
			return name, nil, &chat.MalformedEventError{Kind: chat.KindMessageCreated, Reason: err.Error()}
		}
		ev := chat.MessageCreated{Message: msg}
		return name, ev, ev.Validate()

	case EventUserTyping:
		typing := body.Get("isTyping")
		if typing.Type != gjson.True && typing.Type != gjson.False {
			return name, nil, &chat.MalformedEventError{Kind: chat.KindPeerTyping, Reason: "isTyping is not a boolean"}
		}
		ev := chat.PeerTyping{PeerID: wire.ID(body.Get("userId")), IsTyping: typing.Bool()}
		return name, ev, ev.Validate()

	case EventMessageReaction:
		ev := chat.ReactionChanged{
			MessageID: wire.ID(body.Get("messageId")),
			Reactions: wire.Reactions(body.Get("reactions")),
		}
		return name, ev, ev.Validate()

	case EventDelivered:
		at, err := wire.Time(body.Get("deliveredAt"))
		if err != nil {
			return name, nil, &chat.MalformedEventError{Kind: chat.KindDeliveryConfirmed, Reason: err.Error()}
		}
		ev := chat.DeliveryConfirmed{MessageID: wire.ID(body.Get("messageId")), DeliveredAt: at}
		return name, ev, ev.Validate()

	case EventMessagesRead:
		at, err := wire.Time(body.Get("readAt"))
		if err != nil {
			return name, nil, &chat.MalformedEventError{Kind: chat.KindReadConfirmed, Reason: err.Error()}
		}
		ev := chat.ReadConfirmed{PeerID: wire.ID(body.Get("userId")), ReadAt: at}
		return name, ev, ev.Validate()

	case EventOnlineUsers:
		if !body.IsArray() {
			return name, nil, fmt.Errorf("%w: online users is not a list", ErrMalformedFrame)
		}
		var p presence
		for _, id := range body.Array() {
			if s := wire.ID(id); s != "" {
				p.Online = append(p.Online, s)
			}
		}
		return name, p, nil
	}

	return name, nil, nil
}

// ABOUTME: gjson-based decoders for server message, reaction, and contact payloads
// ABOUTME: Tolerates populated user objects, "_id"/"id" keys, and string or millisecond timestamps

package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/chat"
)

// ErrInvalidPayload is returned when a payload is not valid JSON or lacks required fields.
var ErrInvalidPayload = errors.New("invalid payload")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// ID reads a document id from "_id" or "id". A populated object is reduced
// to its own id.
func ID(r gjson.Result) string {
	if r.IsObject() {
		if id := r.Get("_id"); id.Exists() {
			return id.String()
		}
		return r.Get("id").String()
	}
	return r.String()
}

func docID(r gjson.Result) string {
	if id := r.Get("_id"); id.Exists() {
		return ID(id)
	}
	return ID(r.Get("id"))
}

// Time parses an RFC 3339 string or Unix milliseconds. Missing values yield
// the zero time and no error.
func Time(r gjson.Result) (time.Time, error) {
	switch r.Type {
	case gjson.Null:
		return time.Time{}, nil
	case gjson.Number:
		return time.UnixMilli(r.Int()).UTC(), nil
	case gjson.String:
		if r.Str == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, r.Str)
		if err != nil {
			return time.Time{}, invalid("timestamp %q", r.Str)
		}
		return t, nil
	default:
		return time.Time{}, invalid("timestamp of type %s", r.Type)
	}
}

func optionalTime(r gjson.Result) (*time.Time, error) {
	t, err := Time(r)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// Reactions reads a reaction map. Both {"user":"emoji"} objects and
// [{"userId":..,"emoji":..}] arrays are accepted. The result is never nil.
func Reactions(r gjson.Result) map[string]string {
	out := make(map[string]string)
	switch {
	case r.IsObject():
		r.ForEach(func(k, v gjson.Result) bool {
			if v.String() != "" {
				out[k.String()] = v.String()
			}
			return true
		})
	case r.IsArray():
		r.ForEach(func(_, v gjson.Result) bool {
			user, emoji := ID(v.Get("userId")), v.Get("emoji").String()
			if user != "" && emoji != "" {
				out[user] = emoji
			}
			return true
		})
	}
	return out
}

func media(r gjson.Result) *chat.MediaRef {
	if url := r.Get("image").String(); url != "" {
		return &chat.MediaRef{Kind: chat.MediaImage, URL: url}
	}
	if url := r.Get("video").String(); url != "" {
		return &chat.MediaRef{Kind: chat.MediaVideo, URL: url}
	}
	return nil
}

// MessageFrom decodes a parsed message document.
func MessageFrom(r gjson.Result) (chat.Message, error) {
	if !r.IsObject() {
		return chat.Message{}, invalid("message is not an object")
	}

	m := chat.Message{
		ID:         docID(r),
		SenderID:   ID(r.Get("senderId")),
		ReceiverID: ID(r.Get("receiverId")),
		Text:       r.Get("text").String(),
		Media:      media(r),
		Reactions:  Reactions(r.Get("reactions")),
	}
	switch {
	case m.ID == "":
		return chat.Message{}, invalid("message without id")
	case m.SenderID == "":
		return chat.Message{}, invalid("message %s without sender", m.ID)
	case m.ReceiverID == "":
		return chat.Message{}, invalid("message %s without receiver", m.ID)
	}

	var err error
	if m.CreatedAt, err = Time(r.Get("createdAt")); err != nil {
		return chat.Message{}, err
	}
	if m.CreatedAt.IsZero() {
		return chat.Message{}, invalid("message %s without createdAt", m.ID)
	}
	if m.DeliveredAt, err = optionalTime(r.Get("deliveredAt")); err != nil {
		return chat.Message{}, err
	}
	if m.ReadAt, err = optionalTime(r.Get("readAt")); err != nil {
		return chat.Message{}, err
	}

	if reply := r.Get("replyTo"); reply.IsObject() {
		m.ReplyToID = docID(reply)
		m.ReplyTo = &chat.ReplyPreview{
			SenderID:   ID(reply.Get("senderId")),
			SenderName: reply.Get("senderName").String(),
			Text:       reply.Get("text").String(),
		}
		if rm := media(reply); rm != nil {
			m.ReplyTo.MediaKind = rm.Kind
		}
	} else {
		m.ReplyToID = reply.String()
	}

	return m, nil
}

// Message decodes one message document.
func Message(raw []byte) (chat.Message, error) {
	if !gjson.ValidBytes(raw) {
		return chat.Message{}, invalid("malformed JSON")
	}
	return MessageFrom(gjson.ParseBytes(raw))
}

// Messages decodes a JSON array of messages. An entry that fails to decode
// fails the whole batch.
func Messages(raw []byte) ([]chat.Message, error) {
	if !gjson.ValidBytes(raw) {
		return nil, invalid("malformed JSON")
	}
	arr := gjson.ParseBytes(raw)
	if !arr.IsArray() {
		return nil, invalid("expected an array of messages")
	}

	out := make([]chat.Message, 0, len(arr.Array()))
	var decodeErr error
	arr.ForEach(func(_, v gjson.Result) bool {
		m, err := MessageFrom(v)
		if err != nil {
			decodeErr = err
			return false
		}
		out = append(out, m)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// Contacts decodes a JSON array of user documents.
func Contacts(raw []byte) ([]chat.Contact, error) {
	if !gjson.ValidBytes(raw) {
		return nil, invalid("malformed JSON")
	}
	arr := gjson.ParseBytes(raw)
	if !arr.IsArray() {
		return nil, invalid("expected an array of users")
	}

	out := make([]chat.Contact, 0, len(arr.Array()))
	for _, v := range arr.Array() {
		c := chat.Contact{
			ID:         docID(v),
			FullName:   v.Get("fullName").String(),
			Email:      v.Get("email").String(),
			ProfilePic: v.Get("profilePic").String(),
		}
		if c.ID == "" {
			return nil, invalid("user without id")
		}
		out = append(out, c)
	}
	return out, nil
}

// ErrorMessage extracts a human-readable error from a JSON error body,
// looking at "message" then "error".
func ErrorMessage(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	r := gjson.ParseBytes(raw)
	if msg := r.Get("message").String(); msg != "" {
		return msg
	}
	return r.Get("error").String()
}

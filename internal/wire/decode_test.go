// ABOUTME: Tests for server document decoding
// ABOUTME: Populated ids, timestamp formats, reaction shapes, and invalid payloads

package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/chat"
)

func TestMessage_PopulatedSenderAndReplyObject(t *testing.T) {
	raw := []byte(`{
		"_id": "m1",
		"senderId": {"_id": "u1", "fullName": "Ada"},
		"receiverId": "u2",
		"text": "hi",
		"image": "https://cdn.example/a.png",
		"replyTo": {"_id": "m0", "senderId": "u2", "senderName": "Bob", "text": "yo", "video": "https://cdn.example/v.mp4"},
		"createdAt": "2026-01-02T03:04:05.123Z",
		"deliveredAt": "2026-01-02T03:04:06Z",
		"reactions": {"u2": "👍", "u3": ""}
	}`)

	m, err := Message(raw)
	require.NoError(t, err)

	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "u1", m.SenderID)
	assert.Equal(t, "u2", m.ReceiverID)
	assert.Equal(t, "hi", m.Text)
	require.NotNil(t, m.Media)
	assert.Equal(t, chat.MediaImage, m.Media.Kind)
	assert.Equal(t, "https://cdn.example/a.png", m.Media.URL)
	assert.Equal(t, "m0", m.ReplyToID)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, chat.ReplyPreview{SenderID: "u2", SenderName: "Bob", Text: "yo", MediaKind: chat.MediaVideo}, *m.ReplyTo)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 123e6, time.UTC), m.CreatedAt)
	require.NotNil(t, m.DeliveredAt)
	assert.Nil(t, m.ReadAt)
	assert.Equal(t, map[string]string{"u2": "👍"}, m.Reactions)
}

func TestMessage_PlainIDsAndMillisTimestamp(t *testing.T) {
	m, err := Message([]byte(`{"id":"m2","senderId":"u1","receiverId":"u2","createdAt":1767225600000,"replyTo":"m1"}`))
	require.NoError(t, err)

	assert.Equal(t, "m2", m.ID)
	assert.Equal(t, "m1", m.ReplyToID)
	assert.Nil(t, m.ReplyTo)
	assert.Nil(t, m.Media)
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), m.CreatedAt)
	assert.NotNil(t, m.Reactions)
	assert.Empty(t, m.Reactions)
}

func TestMessage_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"not object", `[1]`},
		{"no id", `{"senderId":"a","receiverId":"b","createdAt":"2026-01-01T00:00:00Z"}`},
		{"no sender", `{"_id":"m","receiverId":"b","createdAt":"2026-01-01T00:00:00Z"}`},
		{"no receiver", `{"_id":"m","senderId":"a","createdAt":"2026-01-01T00:00:00Z"}`},
		{"no createdAt", `{"_id":"m","senderId":"a","receiverId":"b"}`},
		{"bad createdAt", `{"_id":"m","senderId":"a","receiverId":"b","createdAt":"yesterday"}`},
		{"bad readAt", `{"_id":"m","senderId":"a","receiverId":"b","createdAt":"2026-01-01T00:00:00Z","readAt":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Message([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestMessages(t *testing.T) {
	raw := []byte(`[
		{"_id":"a","senderId":"u1","receiverId":"u2","createdAt":"2026-01-01T00:00:00Z","text":"one"},
		{"_id":"b","senderId":"u2","receiverId":"u1","createdAt":"2026-01-01T00:00:01Z","text":"two"}
	]`)
	msgs, err := Messages(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)

	_, err = Messages([]byte(`{"_id":"a"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Messages([]byte(`[{"_id":"a"}]`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestReactions_ArrayForm(t *testing.T) {
	r := gjson.Parse(`[{"userId":"u1","emoji":"🔥"},{"userId":{"_id":"u2"},"emoji":"😂"},{"userId":"u3"}]`)
	assert.Equal(t, map[string]string{"u1": "🔥", "u2": "😂"}, Reactions(r))
	assert.Empty(t, Reactions(gjson.Parse(`null`)))
}

func TestContacts(t *testing.T) {
	cs, err := Contacts([]byte(`[{"_id":"u1","fullName":"Ada","email":"ada@example.com","profilePic":"p.png"}]`))
	require.NoError(t, err)
	assert.Equal(t, []chat.Contact{{ID: "u1", FullName: "Ada", Email: "ada@example.com", ProfilePic: "p.png"}}, cs)

	_, err = Contacts([]byte(`[{"fullName":"nobody"}]`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Unauthorized", ErrorMessage([]byte(`{"message":"Unauthorized"}`)))
	assert.Equal(t, "boom", ErrorMessage([]byte(`{"error":"boom"}`)))
	assert.Empty(t, ErrorMessage([]byte(`<html>`)))
}

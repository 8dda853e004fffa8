// Package realtime is the websocket side of the chat server.
//
// A Stream keeps one connection open, reconnecting with jittered
// exponential backoff, and implements conversation.EventStream. Frames are
// JSON envelopes of the form
//
//	{"event": "newMessage", "data": {...}}
//
// Inbound events understood by the stream:
//
//   - newMessage: a message document
//   - userTyping: {userId, isTyping}
//   - messageReaction: {messageId, reactions}
//   - messageDelivered: {messageId, deliveredAt}
//   - messagesRead: {userId, readAt}
//   - getOnlineUsers: [userId, ...]
//
// Outbound signals are "typing" and "stopTyping" with {receiverId}.
//
// A frame that fails to decode or validate is logged and dropped; it never
// reaches the attached handler table and never tears down the connection.
package realtime

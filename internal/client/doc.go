// Package client is the REST side of the chat server.
//
// A Client implements both conversation.Transport and
// conversation.Directory on top of plain HTTP:
//
//	GET  /messages/{peer}           conversation history
//	POST /messages/send/{peer}      multipart send (text, media, replyTo)
//	POST /messages/reaction/{id}    toggle the caller's reaction
//	POST /messages/read/{peer}      mark the peer's messages read
//	GET  /messages/contacts         everyone the caller can message
//	GET  /messages/chats            people the caller has talked to
//
// Requests carry the session token as a bearer header and, when a cookie
// name is configured, as a cookie. Non-2xx responses become *StatusError.
package client

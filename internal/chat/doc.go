// Package chat defines the data model shared by the synchronization engine
// and its adapters: messages, drafts, media references, inbound events,
// outbound signals, and the error taxonomy.
//
// # Identity
//
// A Message is identified by its ID. Messages created optimistically by the
// local client carry a temporary ID (see IsTempID) until the server assigns
// the authoritative one. Every Message also records the PeerID of the
// one-to-one conversation it belongs to, so filtering an event against the
// active conversation never needs to know which side sent it.
//
// # Errors
//
// Errors fall into four groups:
//
//   - ValidationError: rejected before any network call
//   - TransportError / SendFailedError: collaborator failures surfaced to the caller
//   - MalformedEventError: dropped from the event stream with a log line
//   - stale results: discarded silently, never represented as an error
package chat

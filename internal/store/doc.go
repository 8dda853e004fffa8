// Package store holds the ordered, deduplicated message collection for the
// active conversation. It is the single source of truth for rendering.
//
// # Ordering
//
// Messages are kept in ascending CreatedAt order. Ties are broken by
// insertion order: every entry carries a sequence number assigned on first
// insert, and ReplaceID hands the old entry's sequence to its replacement so
// an optimistic message keeps its slot among peers with the same timestamp.
//
// # Idempotency
//
// Every operation may be applied more than once. Upserting a message equal to
// the stored one, patching a field to its current value, or removing an absent
// id changes nothing and notifies nobody.
//
// # Retired ids
//
// Temporary ids that were replaced by a server id, or removed after a failed
// send, are tombstoned in a dedupe.Tombstones set. Upsert refuses them so a
// late duplicate cannot resurrect a message the user already saw resolved.
// Reset clears the tombstones along with the messages.
//
// # Observers
//
// Observers registered with Observe are called synchronously, after the
// store lock is released, once per effective mutation. Observers may read the
// store but must not mutate it.
package store

// Package conversation keeps the local view of one selected one-to-one
// conversation consistent while optimistic sends, realtime events and
// history fetches all mutate it.
//
// # Engine
//
// The Engine owns a single loop goroutine. Every mutation of conversation
// state (the message store, the session phase, pending operations) runs on
// that loop, so races between sources are settled by program order:
//
//	eng, err := conversation.New(conversation.Config{SelfID: me}, conversation.Deps{
//		Transport: rest,
//		Stream:    stream,
//	})
//	go eng.Run(ctx)
//	defer eng.Close()
//
// Network calls never run on the loop. A public operation posts a closure to
// read or mutate state, performs its network call on the caller's
// goroutine, then posts a completion closure.
//
// # Sessions
//
// Select moves through Idle, Loading and Subscribed. Each selection bumps a
// generation counter. Every completion and every event handler table is
// bound to the generation it started under and becomes a no-op once the
// user has moved on. Switching is the only cancellation trigger.
//
// # Reconciliation rules
//
//   - Only Send swaps a temporary id for a server id. Events are matched by
//     id, never by content.
//   - Reaction maps from the server replace the local map wholesale.
//   - Delivery and read timestamps are written once.
//   - Malformed events are logged and dropped.
//
// # Updates
//
// UI code subscribes with Subscribe and receives message changes, typing
// changes and session transitions. Slow subscribers lose updates rather
// than stall the loop; the store can always be re-read with Messages.
package conversation

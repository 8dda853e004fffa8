// Package typing implements the local and remote typing indicators.
//
// Locally, NotifyTyping is called on every keystroke. The first keystroke of
// a burst emits a Typing signal; StopTyping follows once the quiet period
// elapses with no further keystroke. Remotely, the controller keeps the set
// of peers currently reported as typing.
//
// Timers come from a Clock so tests can drive the debounce with FakeClock.
package typing

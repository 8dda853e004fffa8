// Package dedupe tracks message ids that have been retired from a
// conversation so they can never be reintroduced by a late event or a
// duplicated server response.
package dedupe

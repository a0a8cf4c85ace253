// Package lifecycle drives deadline expiry for offers, votings and
// vacations.
//
// Votings get an in-process one-shot timer armed by a periodic discovery
// pass; offers and vacations are handled purely by sweeps. A startup sweep
// catches up anything that expired while the process was down, and a daily
// backstop sweep re-checks all three kinds regardless of timer state.
// Expiry actions are idempotent: a record that is already gone makes a
// repeat invocation a no-op.
package lifecycle

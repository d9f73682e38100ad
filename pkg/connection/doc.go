// Package connection provides retry pacing for connection attempts and
// other operations against remote peers.
//
// # Backoff
//
// Delays grow exponentially from Initial to Max:
//
//	500ms, 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
//
// Each delay carries additive jitter so that many clients restarting at
// once do not reconnect in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Retry
//
// Retry drives an operation with a Backoff until it succeeds, the context
// is cancelled, or the attempt limit is reached. Wrap an error in
// *Permanent to stop immediately.
package connection

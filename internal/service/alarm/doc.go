// Package alarm is the facade of the relay: it owns the delivery queue, the
// recency buffer and the lifecycle of the single delivery worker.
//
// Submit never waits for the network. Delivery is fire-and-forget from the
// caller's point of view; outcomes are visible only through logs, metrics
// hooks, Recent and Stats.
package alarm

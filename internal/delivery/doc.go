// Package delivery implements the retry engine that posts queued alarms to
// the configured endpoint.
//
// The engine processes one record at a time: it attempts delivery through a
// Transport, backs off exponentially between failed attempts and reports every
// outcome through the context logger and optional Hooks. Delivered records are
// handed to a Recorder; exhausted records are dropped.
package delivery

// Package alarm contains the core domain types of the relay.
//
// It defines Record (one alarm event as it travels through the queue) and
// Severity, plus the JSON wire payload posted to the delivery endpoint.
package alarm

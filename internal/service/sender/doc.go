// Package sender implements the client side commands: submitting one alarm
// to a running relay and printing its stats.
package sender

// Package server is the composition root of the relay process.
//
// Run loads the YAML settings, builds the alarm service with Prometheus
// hooks, starts the delivery worker and serves the gRPC and HTTP APIs until
// the context is canceled. The worker is stopped only after both listeners
// have drained, so requests accepted during shutdown are still queued.
package server

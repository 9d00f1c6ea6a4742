// Package version exposes build metadata of alarm-relay.
//
// Version, Commit and BuildTime are injected at build time via ldflags, e.g.
//
//	-X github.com/oshokin/alarm-relay/internal/version.Version=1.2.0
//
// and default to placeholder values for local builds.
package version

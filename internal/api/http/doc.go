// Package httpapi exposes the alarm relay over HTTP: alarm ingestion, recent
// deliveries, stats, health and Prometheus metrics.
package httpapi

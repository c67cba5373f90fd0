// Package sinks contains progress.Sink implementations: structured logs,
// Prometheus collectors and an in-memory snapshot used by the HTTP API.
package sinks

// Package observability provides the agent's structured logging, Prometheus
// metrics and OpenTelemetry tracing.
//
// # Logging
//
// NewLogger returns a *slog.Logger whose handler redacts Nostr secret keys and
// other credentials from messages and attributes before they are written.
//
// # Metrics
//
// NewMetrics registers the pipeline collectors (events by category, drops,
// queue depth, history size, replies, publishes, relay connections). All
// recording methods accept a nil receiver.
//
// # Tracing
//
// NewTracer configures an OTLP/gRPC exporter when an endpoint is set and falls
// back to a no-op tracer otherwise.
package observability

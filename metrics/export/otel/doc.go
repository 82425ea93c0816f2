// Package otel publishes engine counters through OpenTelemetry asynchronous
// instruments.
//
// Related counters share one instrument and are told apart by an attribute,
// e.g. authcore.logins{outcome} and authcore.sessions{event}. The latency
// histogram becomes a gauge of cumulative counts keyed by le, since the
// metric API has no observable histogram.
//
// [NewExporter] binds instruments to a caller-owned Meter. [Start] builds
// an OTLP/HTTP push pipeline around it for the server.
package otel

// Package prometheus exposes engine metrics as a client_golang
// prometheus.Collector.
//
// Register [Collector] on any registry, or serve [Collector.Handler] at
// /metrics. Values are read from the engine snapshot on every scrape.
package prometheus

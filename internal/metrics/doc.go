// Package metrics defines the Prometheus collectors for commits, ingestion
// stages and the HTTP API. A nil *Metrics is valid and records nothing.
package metrics

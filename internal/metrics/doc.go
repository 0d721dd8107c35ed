// Package metrics defines observability hooks for the persistence core.
// The Recorder interface decouples call sites from the Prometheus
// implementation; a NoopRecorder serves when metrics are not configured.
package metrics

package metrics

import "time"

// Recorder defines observability hooks for persistence operations.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All
// methods must be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveSaveDuration(component string, d time.Duration)
	IncSaveOutcome(component string, success bool)
	IncRecovery(component, source string) // source: backup_slot|bracket_extraction|truncation_repair|defaults
	IncHeal(component string)
	IncMigration(success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveSaveDuration(string, time.Duration) {}
func (NoopRecorder) IncSaveOutcome(string, bool)               {}
func (NoopRecorder) IncRecovery(string, string)                {}
func (NoopRecorder) IncHeal(string)                            {}
func (NoopRecorder) IncMigration(bool)                         {}

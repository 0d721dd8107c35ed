// Package journal records persistence events (saves, recoveries, heals,
// migrations, external file changes) in SQLite for diagnostics. The journal
// is an observer: a journal failure never fails the operation it records.
package journal

import (
	"context"
	"time"
)

// Event types recorded by the persistence core.
const (
	TypeSave           = "save"
	TypeSaveFailed     = "save_failed"
	TypeBackupRestore  = "backup_restore"
	TypeHeal           = "heal"
	TypeRecovery       = "recovery"
	TypeMigration      = "migration"
	TypeMigrationError = "migration_failed"
	TypeExternalChange = "external_change"
	TypeReset          = "reset"
)

// Event is one recorded persistence event.
type Event struct {
	ID        int64             `json:"id"`
	Component string            `json:"component"`
	Type      string            `json:"type"`
	WriteID   string            `json:"write_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Recorder is the write side of the journal. The state store accepts any
// Recorder; a nil-safe no-op keeps the journal optional.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Noop is a Recorder that drops every event.
type Noop struct{}

func (Noop) Record(context.Context, Event) error { return nil }

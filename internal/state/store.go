// Package state implements the component state store: an in-memory,
// path-addressable tree partitioned into named components, each one
// independently persisted through the durability layer in internal/persist.
//
// Every load ends with a valid payload for every component. The read path
// degrades from the primary file through backup slots to heuristic
// recovery to type-specific defaults, and never surfaces a fatal error.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/fieldstate/internal/alert"
	"git.home.luguber.info/inful/fieldstate/internal/envelope"
	"git.home.luguber.info/inful/fieldstate/internal/journal"
	"git.home.luguber.info/inful/fieldstate/internal/logfields"
	"git.home.luguber.info/inful/fieldstate/internal/metrics"
	"git.home.luguber.info/inful/fieldstate/internal/migrate"
	"git.home.luguber.info/inful/fieldstate/internal/persist"
)

// Options carries the optional collaborators of a Store. Zero values are
// valid: no journal, no metrics, no alerts, default migration chain.
type Options struct {
	Journal  journal.Recorder
	Metrics  metrics.Recorder
	Alerts   *alert.Publisher
	Migrator *migrate.Engine
}

// Store owns all component payloads. It is constructed once, initialized
// with Init, and passed to collaborators; there is no ambient global state.
// All mutation is synchronous and serialized.
type Store struct {
	mu         sync.Mutex
	dataDir    string
	components map[string]envelope.Payload
	lastWrite  map[string]time.Time
	journal    journal.Recorder
	metrics    metrics.Recorder
	alerts     *alert.Publisher
	migrator   *migrate.Engine
}

// New creates a store rooted at dataDir. Call Init before use.
func New(dataDir string, opts Options) *Store {
	s := &Store{
		dataDir:    dataDir,
		components: make(map[string]envelope.Payload),
		lastWrite:  make(map[string]time.Time),
		journal:    opts.Journal,
		metrics:    opts.Metrics,
		alerts:     opts.Alerts,
		migrator:   opts.Migrator,
	}
	if s.journal == nil {
		s.journal = journal.Noop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.NoopRecorder{}
	}
	if s.migrator == nil {
		s.migrator = migrate.NewEngine()
	}
	return s
}

// DataDir returns the directory holding the component state files.
func (s *Store) DataDir() string { return s.dataDir }

// Init creates the storage directory if absent and loads or defaults every
// component.
func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.dataDir, 0750); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return s.Load(ctx)
}

// Load populates the in-memory tree from disk for every known component,
// running the full fallback chain and migration for each.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range Components {
		s.loadComponentLocked(ctx, name)
	}
	slog.Info("State loaded", slog.Int("components", len(s.components)))
	return nil
}

// loadComponentLocked runs the read/fallback/recovery chain for one
// component. It always leaves a valid payload in memory.
func (s *Store) loadComponentLocked(ctx context.Context, name string) {
	path := s.componentPath(name)

	res, err := persist.Read(path)
	if err == nil {
		if res.Slot > 0 {
			slog.Warn("Component restored from backup",
				logfields.Component(name), logfields.Slot(res.Slot))
			s.metrics.IncRecovery(name, "backup_slot")
			s.recordEvent(ctx, journal.Event{
				Component: name,
				Type:      journal.TypeBackupRestore,
				WriteID:   res.Envelope.WriteID,
				Detail:    fmt.Sprintf("slot %d", res.Slot),
			})
			if res.Healed {
				s.metrics.IncHeal(name)
				s.lastWrite[name] = time.Now()
				s.recordEvent(ctx, journal.Event{
					Component: name,
					Type:      journal.TypeHeal,
					WriteID:   res.Envelope.WriteID,
					Detail:    fmt.Sprintf("primary rewritten from slot %d", res.Slot),
				})
			}
			s.alerts.Publish(alert.DegradationEvent{
				Component: name,
				Kind:      "backup_restore",
				Severity:  alert.SeverityWarning,
				Detail:    fmt.Sprintf("primary invalid, recovered from backup slot %d", res.Slot),
			})
		}
		migrated, changed := s.migrateLocked(ctx, name, res.Envelope.Payload, res.Envelope.SchemaVersion)
		s.components[name] = migrated
		if changed {
			// Persist with the updated schema version right away.
			if saveErr := s.saveLocked(ctx, name); saveErr != nil {
				slog.Warn("Failed to persist migrated payload",
					logfields.Component(name), logfields.Error(saveErr))
			}
		}
		return
	}
	if !errors.Is(err, persist.ErrAllBackupsExhausted) {
		// Read only fails with the exhausted error today; anything else
		// still funnels into recovery rather than halting the agent.
		slog.Error("Unexpected read failure", logfields.Component(name), logfields.Error(err))
	}

	if s.freshComponent(path) {
		// First run for this component: defaults, quietly persisted.
		payload := defaultsFor(name)()
		s.components[name] = payload
		if saveErr := s.saveLocked(ctx, name); saveErr != nil {
			slog.Warn("Failed to persist initial defaults",
				logfields.Component(name), logfields.Error(saveErr))
		}
		return
	}

	payload, from, source := persist.Recover(path, defaultsFor(name))
	slog.Warn("Component reconstructed by recovery",
		logfields.Component(name), logfields.Source(string(source)))
	s.metrics.IncRecovery(name, string(source))
	s.recordEvent(ctx, journal.Event{
		Component: name,
		Type:      journal.TypeRecovery,
		Detail:    string(source),
	})
	severity := alert.SeverityWarning
	if source == persist.RecoveryDefaults {
		severity = alert.SeverityError
	}
	s.alerts.Publish(alert.DegradationEvent{
		Component: name,
		Kind:      "recovery",
		Severity:  severity,
		Detail:    fmt.Sprintf("reconstructed via %s", source),
	})

	// Recovered payloads may predate the current schema: run the migration
	// chain from the salvaged version (or from zero when none survived)
	// before the payload is committed back to disk.
	migrated, _ := s.migrateLocked(ctx, name, payload, from)
	s.components[name] = migrated

	// Re-persist immediately so subsequent reads do not repeat recovery.
	if saveErr := s.saveLocked(ctx, name); saveErr != nil {
		slog.Error("Failed to persist recovered payload",
			logfields.Component(name), logfields.Error(saveErr))
	}
}

// migrateLocked applies the schema migration chain to a freshly loaded or
// recovered payload. Migration failure preserves the pre-migration payload.
// The caller persists the result when changed reports true.
func (s *Store) migrateLocked(ctx context.Context, name string, payload envelope.Payload, from envelope.Version) (envelope.Payload, bool) {
	migrated, changed, err := s.migrator.Migrate(name, payload, from)
	if err != nil {
		slog.Error("Schema migration failed, keeping un-upgraded payload",
			logfields.Component(name), logfields.Error(err))
		s.metrics.IncMigration(false)
		s.recordEvent(ctx, journal.Event{
			Component: name,
			Type:      journal.TypeMigrationError,
			Detail:    err.Error(),
		})
		s.alerts.Publish(alert.DegradationEvent{
			Component: name,
			Kind:      "migration_failed",
			Severity:  alert.SeverityError,
			Detail:    err.Error(),
		})
		return payload, false
	}
	if !changed {
		return payload, false
	}

	s.metrics.IncMigration(true)
	s.recordEvent(ctx, journal.Event{
		Component: name,
		Type:      journal.TypeMigration,
		Detail:    fmt.Sprintf("%s -> %s", from, envelope.CurrentSchema),
	})
	return migrated, true
}

// freshComponent reports whether neither the primary nor any backup slot
// exists, distinguishing first runs from corruption.
func (s *Store) freshComponent(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return false
	}
	for slot := 1; slot <= persist.BackupSlots; slot++ {
		if _, err := os.Stat(persist.BackupPath(path, slot)); err == nil {
			return false
		}
	}
	return true
}

// Save persists every component sequentially. The first error is returned
// after all components have been attempted; previously committed state is
// never corrupted by a failed save.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, name := range Components {
		if err := s.saveLocked(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SaveComponent persists a single component.
func (s *Store) SaveComponent(ctx context.Context, name string) error {
	if !isKnownComponent(name) {
		return fmt.Errorf("unknown component %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, name)
}

func (s *Store) saveLocked(ctx context.Context, name string) error {
	payload, ok := s.components[name]
	if !ok {
		payload = defaultsFor(name)()
		s.components[name] = payload
	}

	start := time.Now()
	env, err := persist.AtomicWrite(s.componentPath(name), payload)
	s.metrics.ObserveSaveDuration(name, time.Since(start))
	if err != nil {
		s.metrics.IncSaveOutcome(name, false)
		s.recordEvent(ctx, journal.Event{
			Component: name,
			Type:      journal.TypeSaveFailed,
			Detail:    err.Error(),
		})
		s.alerts.Publish(alert.DegradationEvent{
			Component: name,
			Kind:      "save_failed",
			Severity:  alert.SeverityWarning,
			Detail:    err.Error(),
		})
		return fmt.Errorf("save component %s: %w", name, err)
	}

	// Keep the in-memory tree on the normalized payload the checksum was
	// computed over.
	s.components[name] = env.Payload
	s.lastWrite[name] = time.Now()
	s.metrics.IncSaveOutcome(name, true)
	s.recordEvent(ctx, journal.Event{
		Component: name,
		Type:      journal.TypeSave,
		WriteID:   env.WriteID,
	})
	slog.Debug("Component saved",
		logfields.Component(name), logfields.WriteID(env.WriteID))
	return nil
}

// Get returns the value at a dot-delimited path key, or def when the path
// does not resolve. Maps and sequences are returned as deep copies.
func (s *Store) Get(path string, def any) any {
	segments, err := ParsePath(path)
	if err != nil {
		return def
	}
	component, rest := s.resolve(segments)

	s.mu.Lock()
	defer s.mu.Unlock()

	payload := s.componentLocked(component)
	if len(rest) == 0 {
		return envelope.ClonePayload(payload)
	}
	value, ok := lookup(payload, rest)
	if !ok {
		return def
	}
	return cloneAny(value)
}

// Set writes value at a dot-delimited path key, coercing missing or
// non-map intermediate segments into new empty maps. Setting a component
// root replaces that component's whole payload and requires a map value.
func (s *Store) Set(path string, value any) error {
	segments, err := ParsePath(path)
	if err != nil {
		return err
	}
	component, rest := s.resolve(segments)

	s.mu.Lock()
	defer s.mu.Unlock()

	payload := s.componentLocked(component)
	if len(rest) == 0 {
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("component root %q requires a map value", component)
		}
		s.components[component] = envelope.ClonePayload(m)
		return nil
	}
	write(payload, rest, cloneAny(value))
	return nil
}

// Delete removes the value at a path key. Missing paths are a no-op.
func (s *Store) Delete(path string) error {
	segments, err := ParsePath(path)
	if err != nil {
		return err
	}
	component, rest := s.resolve(segments)

	s.mu.Lock()
	defer s.mu.Unlock()

	payload := s.componentLocked(component)
	if len(rest) == 0 {
		s.components[component] = envelope.Payload{}
		return nil
	}
	remove(payload, rest)
	return nil
}

// GetAll returns a deep copy of the entire store, keyed by component.
func (s *Store) GetAll() map[string]envelope.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]envelope.Payload, len(s.components))
	for name, payload := range s.components {
		out[name] = envelope.ClonePayload(payload)
	}
	return out
}

// LastWrite returns when this store last wrote the given component's
// files, for distinguishing its own writes from external modification.
func (s *Store) LastWrite(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWrite[name]
}

// RecordExternalChange journals an out-of-band modification of a
// component file detected by the directory watcher.
func (s *Store) RecordExternalChange(ctx context.Context, name, detail string) {
	s.recordEvent(ctx, journal.Event{
		Component: name,
		Type:      journal.TypeExternalChange,
		Detail:    detail,
	})
	s.alerts.Publish(alert.DegradationEvent{
		Component: name,
		Kind:      "external_change",
		Severity:  alert.SeverityWarning,
		Detail:    detail,
	})
}

// Close performs the final synchronous save of all components. This is the
// one hard ordering requirement at termination.
func (s *Store) Close(ctx context.Context) error {
	if err := s.Save(ctx); err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	slog.Info("State store closed")
	return nil
}

// componentLocked returns the payload for a component, creating it with
// type-specific defaults on first access.
func (s *Store) componentLocked(name string) envelope.Payload {
	payload, ok := s.components[name]
	if !ok {
		payload = defaultsFor(name)()
		s.components[name] = payload
	}
	return payload
}

// resolve maps path segments to a component and the remaining segments.
// An unrecognized first segment addresses the default component with the
// full path applied inside it.
func (s *Store) resolve(segments []string) (string, []string) {
	if isKnownComponent(segments[0]) {
		return segments[0], segments[1:]
	}
	return DefaultComponent, segments
}

func (s *Store) componentPath(name string) string {
	return filepath.Join(s.dataDir, name+FileExt)
}

func (s *Store) recordEvent(ctx context.Context, ev journal.Event) {
	if err := s.journal.Record(ctx, ev); err != nil {
		slog.Warn("Failed to journal persistence event",
			logfields.Component(ev.Component), logfields.Error(err))
	}
}

// cloneAny deep-copies maps and sequences; scalars pass through.
func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(envelope.ClonePayload(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

package state

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/fieldstate/internal/journal"
	"git.home.luguber.info/inful/fieldstate/internal/logfields"
	"git.home.luguber.info/inful/fieldstate/internal/persist"
)

// FileReport is the validation outcome of one on-disk file.
type FileReport struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ComponentReport aggregates validation of a component's primary file and
// every backup slot.
type ComponentReport struct {
	Component string               `json:"component"`
	Primary   FileReport           `json:"primary"`
	Backups   []FileReport         `json:"backups"`
	Status    persist.BackupStatus `json:"status"`
}

// Healthy reports whether the primary file validated.
func (r ComponentReport) Healthy() bool { return r.Primary.Valid }

// Verify validates every component's primary and backup files on disk
// without modifying anything. The boolean is true when every primary is
// valid.
func (s *Store) Verify() (bool, []ComponentReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	healthy := true
	reports := make([]ComponentReport, 0, len(Components))
	for _, name := range Components {
		path := s.componentPath(name)
		report := ComponentReport{
			Component: name,
			Primary:   validateFile(path),
			Status:    persist.Status(path),
		}
		for slot := 1; slot <= persist.BackupSlots; slot++ {
			report.Backups = append(report.Backups, validateFile(persist.BackupPath(path, slot)))
		}
		if !report.Primary.Valid {
			healthy = false
		}
		reports = append(reports, report)
	}
	return healthy, reports
}

func validateFile(path string) FileReport {
	r := FileReport{Path: path}
	if err := persist.Validate(path); err != nil {
		r.Error = err.Error()
		return r
	}
	r.Valid = true
	return r
}

// Restore forces the full read/fallback/recovery chain for a single
// component, replacing its in-memory payload with whatever the chain
// produces. Used when an operator knows the on-disk primary is bad.
func (s *Store) Restore(ctx context.Context, name string) error {
	if !isKnownComponent(name) {
		return fmt.Errorf("unknown component %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.components, name)
	s.loadComponentLocked(ctx, name)
	slog.Info("Component restored", logfields.Component(name))
	return nil
}

// RestoreAll runs the restore chain for every component.
func (s *Store) RestoreAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range Components {
		delete(s.components, name)
		s.loadComponentLocked(ctx, name)
	}
	slog.Info("All components restored")
	return nil
}

// ResetComponent discards a component's in-memory payload and on-disk
// files (primary, temp, and all backup slots), then re-persists defaults.
func (s *Store) ResetComponent(ctx context.Context, name string) error {
	if !isKnownComponent(name) {
		return fmt.Errorf("unknown component %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked(ctx, name)
}

// Reset wipes every component back to defaults.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range Components {
		if err := s.resetLocked(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) resetLocked(ctx context.Context, name string) error {
	path := s.componentPath(name)

	targets := []string{path, persist.TempPath(path)}
	for slot := 1; slot <= persist.BackupSlots; slot++ {
		targets = append(targets, persist.BackupPath(path, slot))
	}
	for _, target := range targets {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset component %s: remove %s: %w", name, target, err)
		}
	}

	s.components[name] = defaultsFor(name)()
	s.recordEvent(ctx, journal.Event{Component: name, Type: journal.TypeReset})
	slog.Info("Component reset to defaults", logfields.Component(name))
	return s.saveLocked(ctx, name)
}

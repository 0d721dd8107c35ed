// Package migrate upgrades component payloads whose stored schema version
// is older than current. Transforms run over a copy of the payload; the
// copy is committed only when the whole chain succeeds, so a failing
// transform can never corrupt data already on disk.
package migrate

import (
	"errors"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/fieldstate/internal/envelope"
	"git.home.luguber.info/inful/fieldstate/internal/logfields"
)

// ErrMigration indicates a transform failed. The pre-migration payload is
// preserved; callers treat this as a reported, non-fatal condition.
var ErrMigration = errors.New("migration failed")

// Transform is one version-gated payload upgrade. Apply must be idempotent:
// the Since guard keeps already-current data a no-op, but a transform may
// also run against data that partially carries its changes.
type Transform struct {
	Component string
	Since     envelope.Version
	Name      string
	Apply     func(p envelope.Payload) error
}

// Engine runs a fixed, ordered transform chain.
type Engine struct {
	transforms []Transform
}

// NewEngine returns an engine with the default transform chain.
func NewEngine() *Engine {
	return &Engine{transforms: defaultTransforms()}
}

// NewEngineWith returns an engine running exactly the given transforms, in
// order. Used by tests and by callers with custom schemas.
func NewEngineWith(transforms []Transform) *Engine {
	return &Engine{transforms: transforms}
}

// Migrate upgrades payload from the given stored version to the current
// schema. Returns the (possibly unchanged) payload and whether any
// transform fired; the caller persists with the updated schema version when
// changed is true.
//
// On any transform error the ORIGINAL payload is returned unchanged
// together with a wrapped ErrMigration.
func (e *Engine) Migrate(component string, payload envelope.Payload, from envelope.Version) (envelope.Payload, bool, error) {
	if !from.Before(envelope.CurrentSchema) {
		return payload, false, nil
	}

	working := envelope.ClonePayload(payload)
	changed := false
	for _, t := range e.transforms {
		if t.Component != component {
			continue
		}
		if !from.Before(t.Since) {
			continue
		}
		if err := t.Apply(working); err != nil {
			return payload, false, fmt.Errorf("%w: %s/%s: %v", ErrMigration, component, t.Name, err)
		}
		slog.Info("Applied schema migration",
			logfields.Component(component),
			slog.String("transform", t.Name),
			slog.String("since", t.Since.String()))
		changed = true
	}
	if !changed {
		return payload, false, nil
	}
	return working, true, nil
}

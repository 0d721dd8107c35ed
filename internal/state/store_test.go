package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fieldstate/internal/journal"
	"git.home.luguber.info/inful/fieldstate/internal/persist"
)

// captureJournal records events in memory for assertions.
type captureJournal struct {
	events []journal.Event
}

func (c *captureJournal) Record(_ context.Context, ev journal.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *captureJournal) byType(eventType string) []journal.Event {
	var out []journal.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir(), Options{})
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestInitCreatesDefaults(t *testing.T) {
	s := newTestStore(t)

	// Every component has a defaulted payload and a persisted primary.
	assert.Equal(t, "north", s.Get("position.heading", nil))
	assert.Equal(t, "strip", s.Get("mining.strategy", nil))
	for _, name := range Components {
		_, err := os.Stat(filepath.Join(s.DataDir(), name+FileExt))
		assert.NoError(t, err, "primary for %s", name)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set("position.x", float64(128)))
	require.NoError(t, s.Set("mining.bounds.width", float64(16)))
	assert.Equal(t, float64(128), s.Get("position.x", nil))
	assert.Equal(t, float64(16), s.Get("mining.bounds.width", nil))

	// Unrecognized first segment addresses the default component.
	require.NoError(t, s.Set("mission.id", "m-42"))
	assert.Equal(t, "m-42", s.Get("main.mission.id", nil))

	// Values survive a save/load cycle through a fresh store.
	require.NoError(t, s.Save(ctx))
	reloaded := New(s.DataDir(), Options{})
	require.NoError(t, reloaded.Init(ctx))
	assert.Equal(t, float64(128), reloaded.Get("position.x", nil))
	assert.Equal(t, "m-42", reloaded.Get("main.mission.id", nil))
}

func TestGetDefaultWhenMissing(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, "fallback", s.Get("position.nonexistent", "fallback"))
	assert.Equal(t, 7, s.Get("bad..path", 7))
}

func TestGetReturnsDeepCopies(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("inventory.reserved.fuel", float64(4)))
	got, ok := s.Get("inventory.reserved", nil).(map[string]any)
	require.True(t, ok)
	got["fuel"] = float64(999)

	assert.Equal(t, float64(4), s.Get("inventory.reserved.fuel", nil))
}

func TestSetComponentRootRequiresMap(t *testing.T) {
	s := newTestStore(t)

	assert.Error(t, s.Set("position", "not a map"))
	require.NoError(t, s.Set("position", map[string]any{"x": float64(1)}))
	assert.Equal(t, float64(1), s.Get("position.x", nil))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("network.endpoint", "wss://relay:9021"))
	require.NoError(t, s.Delete("network.endpoint"))
	assert.Nil(t, s.Get("network.endpoint", nil))

	// Deleting a missing path is a no-op.
	require.NoError(t, s.Delete("network.endpoint"))
}

func TestRestoreFromBackupAfterCorruption(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set("position.x", float64(10)))
	require.NoError(t, s.Set("position.y", float64(64)))
	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Save(ctx)) // ensure slot 1 holds the current payload

	primary := filepath.Join(s.DataDir(), "position"+FileExt)
	require.NoError(t, os.WriteFile(primary, []byte("%%% corrupted %%%"), 0600))

	reloaded := New(s.DataDir(), Options{})
	require.NoError(t, reloaded.Init(ctx))
	assert.Equal(t, float64(10), reloaded.Get("position.x", nil))
	assert.Equal(t, float64(64), reloaded.Get("position.y", nil))

	// The primary was healed in place.
	assert.NoError(t, persist.Validate(primary))
}

func TestDefaultsWhenEverythingCorrupted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set("position.x", float64(99)))
	require.NoError(t, s.Save(ctx))

	primary := filepath.Join(s.DataDir(), "position"+FileExt)
	garbage := []byte("\x00\x01\x02 not even close to json")
	require.NoError(t, os.WriteFile(primary, garbage, 0600))
	for slot := 1; slot <= persist.BackupSlots; slot++ {
		require.NoError(t, os.WriteFile(persist.BackupPath(primary, slot), garbage, 0600))
	}

	reloaded := New(s.DataDir(), Options{})
	require.NoError(t, reloaded.Init(ctx))

	// Recovery bottomed out at type-specific defaults, which were
	// immediately re-persisted as a valid envelope.
	assert.Equal(t, float64(0), reloaded.Get("position.x", nil))
	assert.Equal(t, "north", reloaded.Get("position.heading", nil))
	assert.NoError(t, persist.Validate(primary))
}

func TestRecoveredPayloadIsMigrated(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "position"+FileExt)

	// An old-schema envelope with a bad checksum wrapped in garbage: the
	// read chain rejects it, bracket extraction salvages the payload and
	// its schema_version, and the migration chain must then bring it to
	// the current schema before re-persisting.
	body := `xx%%{"schema_version":"1.0.0","checksum":1,"payload":{"x":5,"y":70,"z":-2}}!!`
	require.NoError(t, os.WriteFile(primary, []byte(body), 0600))

	s := New(dir, Options{})
	require.NoError(t, s.Init(context.Background()))

	assert.Equal(t, float64(5), s.Get("position.x", nil))
	assert.Equal(t, float64(70), s.Get("position.y", nil))
	// Added at 1.1.0; a 1.0.0 payload must pick it up on recovery.
	assert.Equal(t, "overworld", s.Get("position.dimension", nil))
	assert.NoError(t, persist.Validate(primary))
}

func TestRecoveredPayloadWithoutVersionReplaysAllTransforms(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "mining"+FileExt)

	// Truncated mid-write: no schema_version survives, so migration
	// replays from the zero version. The transforms are idempotent, so
	// salvaged fields are kept, missing ones are filled in, and the old
	// flat bounds fields are nested.
	body := `{"payload":{"width":16,"depth":8,"progress":{"mined":42},"strategy":`
	require.NoError(t, os.WriteFile(primary, []byte(body), 0600))

	s := New(dir, Options{})
	require.NoError(t, s.Init(context.Background()))

	assert.Equal(t, float64(42), s.Get("mining.progress.mined", nil))
	assert.Equal(t, "strip", s.Get("mining.strategy", nil))
	assert.Equal(t, float64(16), s.Get("mining.bounds.width", nil))
	assert.Nil(t, s.Get("mining.width", nil))
}

func TestHealIsJournaled(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := New(dir, Options{})
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Set("position.x", float64(7)))
	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Save(ctx))

	primary := filepath.Join(dir, "position"+FileExt)
	require.NoError(t, os.WriteFile(primary, []byte("%%%"), 0600))

	cap := &captureJournal{}
	reloaded := New(dir, Options{Journal: cap})
	require.NoError(t, reloaded.Init(ctx))
	assert.Equal(t, float64(7), reloaded.Get("position.x", nil))

	restores := cap.byType(journal.TypeBackupRestore)
	require.Len(t, restores, 1)
	assert.Equal(t, "position", restores[0].Component)

	heals := cap.byType(journal.TypeHeal)
	require.Len(t, heals, 1)
	assert.Equal(t, "position", heals[0].Component)
	assert.NotEmpty(t, heals[0].WriteID)
}

func TestVerifyReportsCorruption(t *testing.T) {
	s := newTestStore(t)

	primary := filepath.Join(s.DataDir(), "mining"+FileExt)
	require.NoError(t, os.WriteFile(primary, []byte("{broken"), 0600))

	healthy, reports := s.Verify()
	assert.False(t, healthy)

	byName := map[string]ComponentReport{}
	for _, r := range reports {
		byName[r.Component] = r
	}
	assert.False(t, byName["mining"].Healthy())
	assert.True(t, byName["position"].Healthy())
	assert.NotEmpty(t, byName["mining"].Primary.Error)
}

func TestResetComponent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set("mining.strategy", "branch"))
	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Save(ctx))

	require.NoError(t, s.ResetComponent(ctx, "mining"))
	assert.Equal(t, "strip", s.Get("mining.strategy", nil))

	// Backups from before the reset are gone, so the old value cannot leak
	// back in through the fallback chain.
	reloaded := New(s.DataDir(), Options{})
	require.NoError(t, reloaded.Init(ctx))
	assert.Equal(t, "strip", reloaded.Get("mining.strategy", nil))

	assert.Error(t, s.ResetComponent(ctx, "no-such-component"))
}

func TestRestoreRereadsFromDisk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set("network.endpoint", "wss://relay:9021"))
	require.NoError(t, s.Save(ctx))

	// Drift the in-memory value, then restore from disk.
	require.NoError(t, s.Set("network.endpoint", "wss://drifted:1"))
	require.NoError(t, s.Restore(ctx, "network"))
	assert.Equal(t, "wss://relay:9021", s.Get("network.endpoint", nil))

	require.NoError(t, s.Set("network.endpoint", "wss://drifted:2"))
	require.NoError(t, s.RestoreAll(ctx))
	assert.Equal(t, "wss://relay:9021", s.Get("network.endpoint", nil))

	assert.Error(t, s.Restore(ctx, "no-such-component"))
}

func TestGetAllIsACopy(t *testing.T) {
	s := newTestStore(t)

	all := s.GetAll()
	require.Contains(t, all, "position")
	all["position"]["x"] = float64(777)

	assert.Equal(t, float64(0), s.Get("position.x", nil))
}

func TestCloseSavesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set("main.status", "mining"))
	require.NoError(t, s.Close(ctx))

	reloaded := New(s.DataDir(), Options{})
	require.NoError(t, reloaded.Init(ctx))
	assert.Equal(t, "mining", reloaded.Get("main.status", nil))
}

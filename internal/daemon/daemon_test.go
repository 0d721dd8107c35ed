package daemon

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fieldstate/internal/config"
)

func TestComponentForFile(t *testing.T) {
	cases := []struct {
		path      string
		component string
		ok        bool
	}{
		{"/data/position.state", "position", true},
		{"/data/position.state.tmp", "position", true},
		{"/data/position.state.bak1", "position", true},
		{"/data/mining.state.bak3", "mining", true},
		{"/data/journal.db", "", false},
		{"/data/notes.txt", "", false},
	}
	for _, tc := range cases {
		component, ok := componentForFile(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.component, component, tc.path)
	}
}

func TestSchedulerRunsPeriodicSave(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	var saves atomic.Int32
	_, err = s.SchedulePeriodicSave(20*time.Millisecond, func(ctx context.Context) error {
		saves.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	s.Start(ctx)
	defer func() { _ = s.Stop(ctx) }()

	assert.Eventually(t, func() bool { return saves.Load() >= 2 },
		2*time.Second, 10*time.Millisecond)
}

func TestSchedulerSurvivesSaveFailure(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	var attempts atomic.Int32
	_, err = s.SchedulePeriodicSave(20*time.Millisecond, func(ctx context.Context) error {
		attempts.Add(1)
		return assert.AnError
	})
	require.NoError(t, err)

	ctx := context.Background()
	s.Start(ctx)
	defer func() { _ = s.Stop(ctx) }()

	// Failures do not stop the tick; it keeps retrying.
	assert.Eventually(t, func() bool { return attempts.Load() >= 3 },
		2*time.Second, 10*time.Millisecond)
}

func TestDaemonStartStop(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:      dir,
		SaveInterval: "1h", // tick must not interfere with the test
		Watch:        true,
		Journal: config.JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "journal.db"),
		},
	}

	d, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	require.NoError(t, d.Store().Set("main.status", "active"))
	require.NoError(t, d.Stop(ctx))

	// The shutdown save persisted the value.
	d2, err := New(&config.Config{DataDir: dir, SaveInterval: "1h"})
	require.NoError(t, err)
	require.NoError(t, d2.Start(ctx))
	assert.Equal(t, "active", d2.Store().Get("main.status", nil))
	require.NoError(t, d2.Stop(ctx))
}

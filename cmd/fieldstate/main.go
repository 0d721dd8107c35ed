package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/fieldstate/internal/config"
	"git.home.luguber.info/inful/fieldstate/internal/daemon"
	"git.home.luguber.info/inful/fieldstate/internal/journal"
	"git.home.luguber.info/inful/fieldstate/internal/state"
	"git.home.luguber.info/inful/fieldstate/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Run struct {
	} `cmd:"" help:"Run the persistence daemon with periodic saves"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Verify struct {
	} `cmd:"" help:"Validate all state files and backups without modifying anything"`

	Restore struct {
		Component string `arg:"" optional:"" help:"Component to restore (all components when omitted)"`
	} `cmd:"" help:"Force restore through the backup/recovery chain"`

	Reset struct {
		Component string `arg:"" optional:"" help:"Component to reset (all components when omitted)"`
	} `cmd:"" help:"Reset state to type-specific defaults, removing all backups"`

	Get struct {
		Path string `arg:"" help:"Dot-delimited path key, e.g. position.x"`
	} `cmd:"" help:"Print the value at a path key"`

	Set struct {
		Path  string `arg:"" help:"Dot-delimited path key"`
		Value string `arg:"" help:"Value (parsed as JSON, falling back to a plain string)"`
	} `cmd:"" help:"Set a value at a path key and persist"`

	Status struct {
	} `cmd:"" help:"Show file status for every component"`
}

func main() {
	kctx := kong.Parse(&CLI, kong.Vars{"version": version.Version})

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	switch kctx.Command() {
	case "run":
		err = runDaemon()
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	case "verify":
		err = runVerify()
	case "restore", "restore <component>":
		err = runRestore(CLI.Restore.Component)
	case "reset", "reset <component>":
		err = runReset(CLI.Reset.Component)
	case "get <path>":
		err = runGet(CLI.Get.Path)
	case "set <path> <value>":
		err = runSet(CLI.Set.Path, CLI.Set.Value)
	case "status":
		err = runStatus()
	}
	if err != nil {
		slog.Error("Command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when no config file exists, so the
// state commands work out of the box in a fresh directory.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(CLI.Config); os.IsNotExist(err) {
		slog.Debug("No configuration file, using defaults", "path", CLI.Config)
		return config.Default(), nil
	}
	return config.Load(CLI.Config)
}

func runDaemon() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	slog.Info("Daemon started, waiting for shutdown signal...")
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping daemon...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	slog.Info("Daemon stopped successfully")
	return nil
}

func runVerify() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Verify only reads the files on disk, so the store is not initialized
	// here; initialization would heal and recover, which verify must not do.
	store := state.New(cfg.DataDir, state.Options{})
	healthy, reports := store.Verify()

	if err := printJSON(reports); err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("one or more primary state files are invalid")
	}
	return nil
}

func runRestore(component string) error {
	store, ctx, err := openStore()
	if err != nil {
		return err
	}
	if component == "" {
		if err := store.RestoreAll(ctx); err != nil {
			return err
		}
	} else if err := store.Restore(ctx, component); err != nil {
		return err
	}
	return store.Close(ctx)
}

func runReset(component string) error {
	store, ctx, err := openStore()
	if err != nil {
		return err
	}
	if component == "" {
		if err := store.Reset(ctx); err != nil {
			return err
		}
	} else if err := store.ResetComponent(ctx, component); err != nil {
		return err
	}
	return store.Close(ctx)
}

func runGet(path string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	value := store.Get(path, nil)
	if value == nil {
		return fmt.Errorf("no value at %q", path)
	}
	return printJSON(value)
}

func runSet(path, raw string) error {
	store, ctx, err := openStore()
	if err != nil {
		return err
	}

	// Accept JSON so numbers, booleans, maps, and lists round-trip; bare
	// words become strings.
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	if err := store.Set(path, value); err != nil {
		return err
	}
	return store.Close(ctx)
}

// statusReport is the status command's JSON output: file-level validation
// per component plus, when the journal is enabled, the last day of
// persistence events.
type statusReport struct {
	Components   []state.ComponentReport `json:"components"`
	RecentEvents []journal.Event         `json:"recent_events,omitempty"`
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Like verify, status only inspects: no store initialization, so no
	// healing or recovery happens as a side effect.
	store := state.New(cfg.DataDir, state.Options{})
	_, reports := store.Verify()
	out := statusReport{Components: reports}

	if cfg.Journal.Enabled {
		js, err := journal.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			slog.Warn("Could not open journal for status", "path", cfg.Journal.Path, "error", err)
		} else {
			defer func() { _ = js.Close() }()
			events, err := js.Range(context.Background(), time.Now().Add(-24*time.Hour), time.Now())
			if err != nil {
				slog.Warn("Could not query journal for status", "error", err)
			} else {
				out.RecentEvents = events
			}
		}
	}

	return printJSON(out)
}

func openStore() (*state.Store, context.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ctx := context.Background()
	store := state.New(cfg.DataDir, state.Options{})
	if err := store.Init(ctx); err != nil {
		return nil, nil, err
	}
	return store, ctx, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

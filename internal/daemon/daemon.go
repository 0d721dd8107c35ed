// Package daemon runs the long-lived persistence service: the component
// state store plus its periodic save tick, state directory watcher, and the
// optional Prometheus endpoint.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/fieldstate/internal/alert"
	"git.home.luguber.info/inful/fieldstate/internal/config"
	"git.home.luguber.info/inful/fieldstate/internal/journal"
	"git.home.luguber.info/inful/fieldstate/internal/logfields"
	"git.home.luguber.info/inful/fieldstate/internal/metrics"
	"git.home.luguber.info/inful/fieldstate/internal/state"
)

// Daemon owns the store and its supporting services for daemon mode.
type Daemon struct {
	cfg       *config.Config
	store     *state.Store
	scheduler *Scheduler
	watcher   *StateWatcher
	journal   *journal.SQLiteStore
	alerts    *alert.Publisher
	metricsrv *http.Server
}

// New wires a daemon from configuration. Optional services (journal,
// alerts, metrics) are only constructed when enabled; a failure to reach
// NATS or open the journal is a startup error, not a silent downgrade.
func New(cfg *config.Config) (*Daemon, error) {
	d := &Daemon{cfg: cfg}

	opts := state.Options{}

	if cfg.Journal.Enabled {
		js, err := journal.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		d.journal = js
		opts.Journal = js
	}

	if cfg.Alerts.Enabled {
		pub, err := alert.New(cfg.Alerts.URL, cfg.Alerts.Subject)
		if err != nil {
			d.closePartial()
			return nil, fmt.Errorf("connect alert publisher: %w", err)
		}
		d.alerts = pub
		opts.Alerts = pub
	}

	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		opts.Metrics = metrics.NewPrometheusRecorder(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(reg))
		d.metricsrv = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	d.store = state.New(cfg.DataDir, opts)
	return d, nil
}

// Store exposes the daemon's state store.
func (d *Daemon) Store() *state.Store { return d.store }

// Start initializes the store and brings up the periodic save tick, the
// directory watcher, and the metrics endpoint. It returns once everything
// is running; services run on their own goroutines.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.store.Init(ctx); err != nil {
		return fmt.Errorf("initialize state store: %w", err)
	}

	interval, err := d.cfg.Interval()
	if err != nil {
		return err
	}

	d.scheduler, err = NewScheduler()
	if err != nil {
		return err
	}
	if _, err := d.scheduler.SchedulePeriodicSave(interval, d.store.Save); err != nil {
		return err
	}
	d.scheduler.Start(ctx)
	slog.Info("Periodic persistence scheduled", slog.Duration("interval", interval))

	if d.cfg.Watch {
		d.watcher, err = NewStateWatcher(d.store)
		if err != nil {
			return err
		}
		if err := d.watcher.Start(ctx); err != nil {
			return err
		}
	}

	if d.metricsrv != nil {
		go func() {
			slog.Info("Metrics endpoint listening", slog.String("addr", d.metricsrv.Addr))
			if err := d.metricsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
	}

	return nil
}

// Stop shuts the daemon down in dependency order: the save tick and the
// watcher first, then the final synchronous save, then the observers.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error

	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop scheduler: %w", err)
		}
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// The final save must complete before the journal closes so the
	// shutdown save events are recorded.
	if err := d.store.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if d.metricsrv != nil {
		if err := d.metricsrv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown metrics server: %w", err)
		}
	}
	d.alerts.Close()
	if d.journal != nil {
		if err := d.journal.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close journal: %w", err)
		}
	}
	return firstErr
}

// closePartial releases resources acquired during a failed New.
func (d *Daemon) closePartial() {
	if d.journal != nil {
		_ = d.journal.Close()
	}
	d.alerts.Close()
}

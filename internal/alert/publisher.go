// Package alert publishes persistence degradation events over NATS so
// collaborating modules (UI, remote monitoring) can react when the agent is
// running on recovered or defaulted state. Publishing is strictly best
// effort: a nil *Publisher is valid and drops everything.
package alert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/fieldstate/internal/logfields"
)

// Severity levels for degradation events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// DegradationEvent describes a persistence fault or recovery the rest of
// the system should know about.
type DegradationEvent struct {
	Component string    `json:"component"`
	Kind      string    `json:"kind"` // backup_restore|recovery|defaults|migration_failed|save_failed|external_change
	Severity  string    `json:"severity"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends degradation events to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// New connects to NATS and returns a publisher for the given subject.
func New(url, subject string) (*Publisher, error) {
	if subject == "" {
		return nil, fmt.Errorf("alert subject is required")
	}
	conn, err := nats.Connect(url,
		nats.Name("fieldstate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	slog.Info("Alert publisher connected", slog.String("url", url), slog.String("subject", subject))
	return &Publisher{conn: conn, subject: subject}, nil
}

// Publish sends one degradation event. Safe on a nil publisher. Errors are
// logged, not returned: the persistence core never fails an operation
// because alerting is down.
func (p *Publisher) Publish(ev DegradationEvent) {
	if p == nil || p.conn == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal degradation event", logfields.Error(err))
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		slog.Warn("Failed to publish degradation event",
			logfields.Component(ev.Component), logfields.Error(err))
		return
	}
	slog.Debug("Published degradation event",
		logfields.Component(ev.Component),
		slog.String("kind", ev.Kind),
		slog.String("severity", ev.Severity))
}

// Close flushes and closes the NATS connection. Safe on nil.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Flush()
	p.conn.Close()
}

package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once         sync.Once
	saveDuration *prom.HistogramVec
	saveOutcome  *prom.CounterVec
	recoveries   *prom.CounterVec
	heals        *prom.CounterVec
	migrations   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.saveDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "fieldstate",
			Name:      "save_duration_seconds",
			Help:      "Duration of per-component saves",
			Buckets:   prom.DefBuckets,
		}, []string{"component"})
		pr.saveOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "fieldstate",
			Name:      "saves_total",
			Help:      "Save attempts by component and outcome",
		}, []string{"component", "outcome"})
		pr.recoveries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "fieldstate",
			Name:      "recoveries_total",
			Help:      "Read-path recoveries by component and source",
		}, []string{"component", "source"})
		pr.heals = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "fieldstate",
			Name:      "primary_heals_total",
			Help:      "Primary files rewritten from a valid backup",
		}, []string{"component"})
		pr.migrations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "fieldstate",
			Name:      "migrations_total",
			Help:      "Schema migrations by outcome",
		}, []string{"outcome"})
		reg.MustRegister(pr.saveDuration, pr.saveOutcome, pr.recoveries, pr.heals, pr.migrations)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveSaveDuration(component string, d time.Duration) {
	if p == nil || p.saveDuration == nil {
		return
	}
	p.saveDuration.WithLabelValues(component).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSaveOutcome(component string, success bool) {
	if p == nil || p.saveOutcome == nil {
		return
	}
	p.saveOutcome.WithLabelValues(component, outcomeLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncRecovery(component, source string) {
	if p == nil || p.recoveries == nil {
		return
	}
	p.recoveries.WithLabelValues(component, source).Inc()
}

func (p *PrometheusRecorder) IncHeal(component string) {
	if p == nil || p.heals == nil {
		return
	}
	p.heals.WithLabelValues(component).Inc()
}

func (p *PrometheusRecorder) IncMigration(success bool) {
	if p == nil || p.migrations == nil {
		return
	}
	p.migrations.WithLabelValues(outcomeLabel(success)).Inc()
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

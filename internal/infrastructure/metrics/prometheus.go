// Package metrics exports reminder activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// Prometheus metric names.
const (
	MetricDispatchesTotal      = "office_ledger_reminder_dispatches_total"
	MetricCyclesTotal          = "office_ledger_reminder_cycles_total"
	MetricCycleDurationSeconds = "office_ledger_reminder_cycle_duration_seconds"
	MetricCycleTally           = "office_ledger_reminder_last_cycle"
	MetricLeaseSkippedTotal    = "office_ledger_reminder_lease_skipped_total"
)

// Reminders implements port.ReminderMetrics on its own registry
type Reminders struct {
	registry *prometheus.Registry

	dispatches   *prometheus.CounterVec
	cycles       *prometheus.CounterVec
	duration     prometheus.Histogram
	lastCycle    *prometheus.GaugeVec
	leaseSkipped prometheus.Counter
}

// NewReminders creates and registers the reminder collectors
func NewReminders() *Reminders {
	m := &Reminders{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDispatchesTotal,
			Help: "Reminder dispatch attempts by outcome.",
		}, []string{"outcome"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCyclesTotal,
			Help: "Completed reminder cycles by trigger.",
		}, []string{"trigger"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricCycleDurationSeconds,
			Help:    "Reminder cycle wall time.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastCycle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricCycleTally,
			Help: "Tally of the most recent reminder cycle.",
		}, []string{"field"}),
		leaseSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricLeaseSkippedTotal,
			Help: "Cycles skipped because another instance held the lease.",
		}),
	}

	m.registry.MustRegister(
		m.dispatches,
		m.cycles,
		m.duration,
		m.lastCycle,
		m.leaseSkipped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDispatch counts one finalized dispatch
func (m *Reminders) ObserveDispatch(outcome string) {
	m.dispatches.WithLabelValues(outcome).Inc()
}

// ObserveCycle records a completed cycle
func (m *Reminders) ObserveCycle(trigger string, tally entity.CycleTally, duration time.Duration) {
	m.cycles.WithLabelValues(trigger).Inc()
	m.duration.Observe(duration.Seconds())
	m.lastCycle.WithLabelValues("attempted").Set(float64(tally.Attempted))
	m.lastCycle.WithLabelValues("sent").Set(float64(tally.Sent))
	m.lastCycle.WithLabelValues("failed").Set(float64(tally.Failed))
	m.lastCycle.WithLabelValues("skipped").Set(float64(tally.Skipped))
}

// ObserveLeaseSkipped counts a cycle that lost the lease
func (m *Reminders) ObserveLeaseSkipped() {
	m.leaseSkipped.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Reminders) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ port.ReminderMetrics = (*Reminders)(nil)

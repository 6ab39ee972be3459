// Package metrics exposes reconciliation counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ning0612/revlink/internal/domain"
)

const namespace = "revlink"

// Recorder holds the revlink collectors on its own registry
type Recorder struct {
	registry *prometheus.Registry

	outcomes      *prometheus.CounterVec
	malformed     prometheus.Counter
	events        *prometheus.CounterVec
	scans         *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	lastScanTime  prometheus.Gauge
	scanRecords   prometheus.Gauge
	lockContended prometheus.Counter
}

// New creates a Recorder with every outcome label pre-initialised to zero
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_outcomes_total",
			Help:      "Reverse-link reconciliations by outcome.",
		}, []string{"outcome"}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_records_total",
			Help:      "Transfer records skipped because they could not be expanded.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_events_total",
			Help:      "Transfer-complete events received, by result.",
		}, []string{"result"}),
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Backlog scans by trigger and final status.",
		}, []string{"trigger", "status"}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of backlog scans.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		lastScanTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time the last backlog scan finished.",
		}),
		scanRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_records",
			Help:      "Transfer records visited by the last backlog scan.",
		}),
		lockContended: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_lock_contended_total",
			Help:      "Scans refused because another scan held the lock.",
		}),
	}

	for _, o := range domain.AllOutcomes {
		r.outcomes.WithLabelValues(string(o))
	}
	return r
}

// ObserveOutcome counts one reconciliation outcome
func (r *Recorder) ObserveOutcome(outcome domain.Outcome) {
	r.outcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveMalformed counts one transfer record that failed expansion
func (r *Recorder) ObserveMalformed() {
	r.malformed.Inc()
}

// ObserveEvent counts a transfer-complete event; result is "handled", "ignored" or "rejected"
func (r *Recorder) ObserveEvent(result string) {
	r.events.WithLabelValues(result).Inc()
}

// ObserveScan records a finished backlog scan
func (r *Recorder) ObserveScan(trigger, status string, records int, duration time.Duration) {
	r.scans.WithLabelValues(trigger, status).Inc()
	r.scanDuration.Observe(duration.Seconds())
	r.lastScanTime.SetToCurrentTime()
	r.scanRecords.Set(float64(records))
}

// ObserveLockContended counts a scan refused by the scan lock
func (r *Recorder) ObserveLockContended() {
	r.lockContended.Inc()
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"salvage-radar/models"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so components can be built without metrics.
type Metrics struct {
	// Run metrics
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	ListingsFound  prometheus.Counter
	OffersNew      prometheus.Counter
	OffersAnalyzed prometheus.Counter
	OffersSkipped  prometheus.Counter
	HotOffers      prometheus.Counter

	// Collaborator metrics
	SourceFailures       *prometheus.CounterVec
	AdvisoryDuration     prometheus.Histogram
	AdvisoryFallbacks    prometheus.Counter
	NotificationsSent    *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
}

// New registers the collectors on reg. Passing a fresh registry per test
// avoids duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salvage_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"status"},
		),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "salvage_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		ListingsFound: f.NewCounter(prometheus.CounterOpts{
			Name: "salvage_listings_found_total",
			Help: "Cleaned listings seen across runs",
		}),
		OffersNew: f.NewCounter(prometheus.CounterOpts{
			Name: "salvage_offers_new_total",
			Help: "Offers inserted into the store",
		}),
		OffersAnalyzed: f.NewCounter(prometheus.CounterOpts{
			Name: "salvage_offers_analyzed_total",
			Help: "Offers with an attached analysis",
		}),
		OffersSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "salvage_offers_skipped_total",
			Help: "New offers rejected by the opportunity filter",
		}),
		HotOffers: f.NewCounter(prometheus.CounterOpts{
			Name: "salvage_hot_offers_total",
			Help: "Offers classified as hot",
		}),
		SourceFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salvage_source_failures_total",
				Help: "Listing source fetches that failed or timed out",
			},
			[]string{"source"},
		),
		AdvisoryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "salvage_advisory_duration_seconds",
			Help:    "Latency of advisory scoring calls",
			Buckets: prometheus.DefBuckets,
		}),
		AdvisoryFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "salvage_advisory_fallbacks_total",
			Help: "Scores that fell back to the fixed analysis",
		}),
		NotificationsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salvage_notifications_total",
				Help: "Hot offer notifications by outcome",
			},
			[]string{"status"},
		),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "salvage_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full",
		}),
	}
}

// ObserveAdvisory records one scoring call.
func (m *Metrics) ObserveAdvisory(d time.Duration, fallback bool) {
	if m == nil {
		return
	}
	m.AdvisoryDuration.Observe(d.Seconds())
	if fallback {
		m.AdvisoryFallbacks.Inc()
	}
}

func (m *Metrics) SourceFailed(source string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) Notification(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.NotificationsSent.WithLabelValues(status).Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

// ObserveRun records the counts of a completed run.
func (m *Metrics) ObserveRun(r *models.RunReport) {
	if m == nil || r == nil {
		return
	}
	m.RunsTotal.WithLabelValues("ok").Inc()
	m.RunDuration.Observe(r.DurationSeconds)
	m.ListingsFound.Add(float64(r.TotalFound))
	m.OffersNew.Add(float64(r.NewAdded))
	m.OffersAnalyzed.Add(float64(r.Analyzed))
	m.OffersSkipped.Add(float64(r.SkippedCount))
	m.HotOffers.Add(float64(r.HotCount))
}

// RunFailed counts a run that ended with a fatal error.
func (m *Metrics) RunFailed() {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("failed").Inc()
}

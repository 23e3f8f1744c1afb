package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Archive-level collectors. HTTP traffic metrics live in the middleware
// package; these describe what the archive itself did.
var (
	// CapturesTotal counts finished captures by result (done, failed).
	CapturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_captures_total",
			Help: "Total number of finished captures by result.",
		},
		[]string{"result"},
	)

	// CaptureDuration records provider plus storage time per capture.
	CaptureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "archive_capture_duration_seconds",
			Help:    "Duration of captures in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)

	// CapturesInflight gauges running capture tasks.
	CapturesInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "archive_captures_inflight",
			Help: "Current number of running capture tasks.",
		},
	)

	// SubmissionsTotal counts external archive submissions by outcome
	// (success, already_submitted, quota_exceeded, failed).
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_external_submissions_total",
			Help: "Total number of external archive submissions by outcome.",
		},
		[]string{"outcome"},
	)

	// QuotaSubmittedToday mirrors the persisted daily submission counter.
	QuotaSubmittedToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "archive_quota_submitted_today",
			Help: "External archive submissions counted for the current day.",
		},
	)

	// QuotaDailyLimit mirrors the persisted daily limit.
	QuotaDailyLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "archive_quota_daily_limit",
			Help: "Configured daily limit for external archive submissions.",
		},
	)

	// WebsitesDeletedTotal counts registry entries removed.
	WebsitesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_websites_deleted_total",
			Help: "Total number of archived websites deleted.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CapturesTotal, CaptureDuration, CapturesInflight,
		SubmissionsTotal, QuotaSubmittedToday, QuotaDailyLimit,
		WebsitesDeletedTotal,
	)
}

// ObserveCapture records one finished capture.
func ObserveCapture(result string, start time.Time) {
	CapturesTotal.WithLabelValues(result).Inc()
	CaptureDuration.Observe(time.Since(start).Seconds())
}

// SetQuota publishes the current quota counters.
func SetQuota(submitted, limit int) {
	QuotaSubmittedToday.Set(float64(submitted))
	QuotaDailyLimit.Set(float64(limit))
}

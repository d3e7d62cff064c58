package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"activity_sync/internal/domain"
)

var (
	recordsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "reconciliation",
		Name:      "records_total",
		Help:      "Activity records processed, by batch outcome.",
	}, []string{"outcome"})

	jobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "jobs",
		Name:      "transitions_total",
		Help:      "Scrape job state transitions, by resulting status.",
	}, []string{"status"})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_sync",
		Subsystem: "reconciliation",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed synchronization.",
	})
)

func init() {
	prometheus.MustRegister(recordsProcessed, jobTransitions, lastSyncGauge)
}

// RecordSyncSummary updates the reconciliation counters from one
// completed batch.
func RecordSyncSummary(summary *domain.SyncSummary) {
	recordsProcessed.WithLabelValues("created").Add(float64(summary.Created))
	recordsProcessed.WithLabelValues("updated").Add(float64(summary.Updated))
	recordsProcessed.WithLabelValues("deactivated").Add(float64(summary.Deactivated))
	recordsProcessed.WithLabelValues("error").Add(float64(len(summary.Errors)))
	lastSyncGauge.Set(float64(time.Now().Unix()))
}

// RecordJobTransition counts one job state transition.
func RecordJobTransition(status domain.JobStatus) {
	jobTransitions.WithLabelValues(string(status)).Inc()
}

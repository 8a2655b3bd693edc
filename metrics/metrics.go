package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventsync/scanner"
)

var (
	scansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_scans_total",
		Help: "Completed scan passes.",
	})
	scanFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventsync_scan_failures_total",
		Help: "Scan passes aborted by a fetch or store failure.",
	})
	eventOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventsync_event_outcomes_total",
		Help: "Per-event terminal outcomes.",
	}, []string{"outcome"})
	lastScanEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventsync_last_scan_events",
		Help: "Events fetched by the most recent scan.",
	})
)

// RecordScan updates counters from one scan summary.
func RecordScan(summary *scanner.Summary) {
	scansTotal.Inc()
	lastScanEvents.Set(float64(summary.Fetched))
	for outcome, count := range summary.Counts {
		eventOutcomes.WithLabelValues(string(outcome)).Add(float64(count))
	}
}

// RecordScanFailure counts an aborted scan.
func RecordScanFailure() {
	scanFailures.Inc()
}

// Serve exposes /metrics on addr. Blocks; run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

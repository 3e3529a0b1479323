// Package metrics instruments the relay server with prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	relayDuration   *prometheus.HistogramVec
	relayErrors     *prometheus.CounterVec
	feeSettlements  prometheus.Counter
	backupsUploaded prometheus.Counter
	backupsFetched  prometheus.Counter
)

// Init registers all collectors under the given namespace.
func Init(serviceName string) {
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: serviceName,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests",
		},
	)

	relayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: serviceName,
			Name:      "relay_duration_seconds",
			Help:      "Upstream chat relay duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	relayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serviceName,
			Name:      "relay_errors_total",
			Help:      "Upstream chat relay errors",
		},
		[]string{"kind"},
	)

	feeSettlements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "fee_settlements_total",
		Help:      "Total fee settlements committed",
	})
	backupsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "backups_uploaded_total",
		Help:      "Total transcripts backed up",
	})
	backupsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "backups_fetched_total",
		Help:      "Total backups retrieved",
	})
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// Instrument wraps a handler with request counting and timing.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		duration := time.Since(start).Seconds()
		status := "0"
		if rw.status != 0 {
			status = http.StatusText(rw.status)
		}
		httpRequests.WithLabelValues(r.URL.Path, r.Method, status).Inc()
		httpDuration.WithLabelValues(r.URL.Path, r.Method).Observe(duration)
		httpInFlight.Dec()
	})
}

// ObserveRelay records a relay call outcome.
func ObserveRelay(start time.Time, outcome string) {
	if relayDuration != nil {
		relayDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

// IncRelayError counts a relay error by kind.
func IncRelayError(kind string) {
	if relayErrors != nil {
		relayErrors.WithLabelValues(kind).Inc()
	}
}

// IncFeeSettlement counts a committed settlement.
func IncFeeSettlement() {
	if feeSettlements != nil {
		feeSettlements.Inc()
	}
}

// IncBackupUploaded counts a completed backup.
func IncBackupUploaded() {
	if backupsUploaded != nil {
		backupsUploaded.Inc()
	}
}

// IncBackupFetched counts a retrieved backup.
func IncBackupFetched() {
	if backupsFetched != nil {
		backupsFetched.Inc()
	}
}

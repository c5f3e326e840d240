package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cryptopay"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	invoicesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoices",
			Name:      "created_total",
			Help:      "Total number of invoices created.",
		},
		[]string{"status"},
	)

	invoiceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoices",
			Name:      "transitions_total",
			Help:      "Invoice status changes, including rejected ones.",
		},
		[]string{"from", "to", "result"},
	)

	transactionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transactions",
			Name:      "recorded_total",
			Help:      "Total number of transactions recorded.",
		},
		[]string{"type", "status"},
	)

	bridgeTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "transfers_total",
			Help:      "Simulated cross-chain transfers by terminal status.",
		},
		[]string{"status"},
	)

	priceRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "refreshes_total",
			Help:      "Price feed refresh attempts.",
		},
		[]string{"result"},
	)

	priceRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of price feed refreshes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	mirrorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kv",
			Name:      "mirror_errors_total",
			Help:      "Key-value mirror operations that failed.",
		},
		[]string{"op"},
	)

	ledgerErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sink_errors_total",
			Help:      "Ledger sink postings that failed.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		invoicesCreated,
		invoiceTransitions,
		transactionsRecorded,
		bridgeTransfers,
		priceRefreshes,
		priceRefreshDuration,
		mirrorErrors,
		ledgerErrors,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Installed as router middleware, it labels requests by route template.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := routePath(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

func RecordInvoiceCreated(status string) {
	invoicesCreated.WithLabelValues(status).Inc()
}

func RecordInvoiceTransition(from, to string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	invoiceTransitions.WithLabelValues(from, to, result).Inc()
}

func RecordTransaction(txType, status string) {
	transactionsRecorded.WithLabelValues(txType, status).Inc()
}

func RecordBridgeTransfer(status string) {
	bridgeTransfers.WithLabelValues(status).Inc()
}

// RecordPriceRefresh records metrics for a price feed refresh.
func RecordPriceRefresh(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "success"
	if !success {
		result = "error"
	}
	priceRefreshes.WithLabelValues(result).Inc()
	priceRefreshDuration.Observe(duration.Seconds())
}

func RecordMirrorError(op string) {
	mirrorErrors.WithLabelValues(op).Inc()
}

func RecordLedgerError() {
	ledgerErrors.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// routePath keeps label cardinality bounded by using the matched mux template.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return canonicalPath(r.URL.Path)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] == "api" && len(parts) > 1 {
		return "/api/" + parts[1]
	}
	return "/" + parts[0]
}

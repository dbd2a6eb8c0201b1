// Package metrics holds the prometheus collectors shared by the session
// layer and the ledger's persistence hook.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Name:      "requests_total",
			Help:      "Total number of protocol requests by op and result code",
		},
		[]string{"op", "code"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bank",
			Name:      "request_duration_seconds",
			Help:      "Duration of protocol requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bank",
		Name:      "sessions_active",
		Help:      "Number of open client sessions",
	})
	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bank",
		Name:      "persist_failures_total",
		Help:      "Snapshot saves that failed",
	})
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Name:      "transfers_total",
			Help:      "Completed transfers, split by whether a conversion happened",
		},
		[]string{"converted"},
	)
)

// ObserveRequest records one handled request. An empty code means success.
func ObserveRequest(op, code string, elapsed time.Duration) {
	if code == "" {
		code = "ok"
	}
	requestsTotal.WithLabelValues(op, code).Inc()
	requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SessionOpened and SessionClosed track the active session gauge.
func SessionOpened() { sessionsActive.Inc() }

func SessionClosed() { sessionsActive.Dec() }

// ObservePersist is a persistence observer for the ledger.
func ObservePersist(err error) {
	if err != nil {
		persistFailures.Inc()
	}
}

// ObserveTransfer counts a completed transfer.
func ObserveTransfer(converted bool) {
	transfersTotal.WithLabelValues(strconv.FormatBool(converted)).Inc()
}

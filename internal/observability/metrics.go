package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nonscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nonscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	linkConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nonscan",
			Subsystem: "link",
			Name:      "connect_attempts_total",
			Help:      "Panel connect attempts by result.",
		},
		[]string{"success"},
	)
	linkState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nonscan",
			Subsystem: "link",
			Name:      "state",
			Help:      "Current link state (1 for the active state).",
		},
		[]string{"state"},
	)
	listenerStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nonscan",
			Subsystem: "link",
			Name:      "listener_starts_total",
			Help:      "Receive loops spawned.",
		},
	)
	wireBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nonscan",
			Subsystem: "wire",
			Name:      "bytes_total",
			Help:      "Bytes moved over the panel link by direction.",
		},
		[]string{"direction"},
	)
	wireDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nonscan",
			Subsystem: "wire",
			Name:      "decisions_total",
			Help:      "Decoder verdicts for received chunks.",
		},
		[]string{"decision"},
	)
	approvals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nonscan",
			Subsystem: "approval",
			Name:      "requests_total",
			Help:      "Approval requests by outcome.",
		},
		[]string{"outcome"},
	)
	approvalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nonscan",
			Subsystem: "approval",
			Name:      "wait_seconds",
			Help:      "Time from request send to resolution.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	linkStates = []string{"disconnected", "connecting", "connected", "closing"}
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			linkConnects,
			linkState,
			listenerStarts,
			wireBytes,
			wireDecisions,
			approvals,
			approvalDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordLinkConnect(success bool) {
	RegisterMetrics()
	linkConnects.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func RecordLinkState(state string) {
	RegisterMetrics()
	for _, s := range linkStates {
		v := 0.0
		if s == state {
			v = 1
		}
		linkState.WithLabelValues(s).Set(v)
	}
}

func RecordListenerStart() {
	RegisterMetrics()
	listenerStarts.Inc()
}

func RecordWireBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	wireBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordWireDecision(decision string) {
	RegisterMetrics()
	wireDecisions.WithLabelValues(decision).Inc()
}

func RecordApproval(outcome string, waited time.Duration) {
	RegisterMetrics()
	approvals.WithLabelValues(outcome).Inc()
	if waited > 0 {
		approvalDuration.Observe(waited.Seconds())
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "chatrelay_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_requests_total",
			Help: "Relay requests by endpoint, model and outcome",
		},
		[]string{"endpoint", "model", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_request_duration_seconds",
			Help:    "Relay request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "model"},
	)

	fragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_fragments_total",
			Help: "Text fragments relayed to callers",
		},
		[]string{"model"},
	)

	upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_upstream_errors_total",
			Help: "Upstream failures by kind",
		},
		[]string{"kind"},
	)

	modelTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_model_tokens_total",
			Help: "Tokens reported by the upstream per model",
		},
		[]string{"kind", "model"},
	)

	streamsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_streams_inflight",
			Help: "Number of streams currently being relayed",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, requests, requestDuration, fragments, upstreamErrors, modelTokens, streamsInflight)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordRequest counts one finished relay request and observes its duration.
func RecordRequest(endpoint, model, outcome string, dur time.Duration) {
	requests.WithLabelValues(endpoint, model, outcome).Inc()
	requestDuration.WithLabelValues(endpoint, model).Observe(dur.Seconds())
}

// AddFragments counts fragments delivered for model.
func AddFragments(model string, n int) {
	if n > 0 {
		fragments.WithLabelValues(model).Add(float64(n))
	}
}

// RecordUpstreamError counts an upstream failure of the given kind
// (connect, status, malformed, read, decode).
func RecordUpstreamError(kind string) {
	upstreamErrors.WithLabelValues(kind).Inc()
}

// RecordModelTokens adds tokens of the given kind ("in" or "out") for model.
func RecordModelTokens(model, kind string, n uint64) {
	if n > 0 {
		modelTokens.WithLabelValues(kind, model).Add(float64(n))
	}
}

// StreamStart marks a stream as in flight.
func StreamStart() { streamsInflight.Inc() }

// StreamEnd marks a stream as finished.
func StreamEnd() { streamsInflight.Dec() }

// OtherModel is the label value reported for models outside a ModelLabels set.
const OtherModel = "other"

// ModelLabels bounds the values of the model label. Request bodies name
// arbitrary models, so only configured names are reported as themselves.
type ModelLabels struct {
	known map[string]struct{}
}

// NewModelLabels returns a set that keeps the given names. Empty names are ignored.
func NewModelLabels(names ...string) ModelLabels {
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			known[n] = struct{}{}
		}
	}
	return ModelLabels{known: known}
}

// Label returns model when it is known, or OtherModel.
func (m ModelLabels) Label(model string) string {
	if _, ok := m.known[model]; ok {
		return model
	}
	return OtherModel
}

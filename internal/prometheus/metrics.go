package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	callDurationBucketStart  = 5.0
	callDurationBucketFactor = 2.0
	callDurationBucketCount  = 12
)

const (
	ringDurationBucketStart  = 0.5
	ringDurationBucketFactor = 2.0
	ringDurationBucketCount  = 8
)

const (
	feedLatencyBucketStart  = 0.05
	feedLatencyBucketFactor = 2.5
	feedLatencyBucketCount  = 10
)

var ActiveCalls = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "active_calls",
		Help: "Number of call sessions currently active on this client",
	},
)

var CallOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "call_outcomes_total",
		Help: "Terminal call statuses observed locally",
	},
	[]string{"status"},
)

var CallDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "call_duration_seconds",
		Help: "Duration of answered calls, measured from answer to end",
		Buckets: prometheus.ExponentialBuckets(
			callDurationBucketStart,
			callDurationBucketFactor,
			callDurationBucketCount,
		),
	},
)

var RingDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "ring_duration_seconds",
		Help: "Time an inbound attempt spent ringing before answer or reject",
		Buckets: prometheus.ExponentialBuckets(
			ringDurationBucketStart,
			ringDurationBucketFactor,
			ringDurationBucketCount,
		),
	},
)

var FeedEventLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "feed_event_latency_seconds",
		Help: "Time from change event emission to local consumption",
		Buckets: prometheus.ExponentialBuckets(
			feedLatencyBucketStart,
			feedLatencyBucketFactor,
			feedLatencyBucketCount,
		),
	},
)

func init() {
	prometheus.MustRegister(ActiveCalls)
	prometheus.MustRegister(CallOutcomes)
	prometheus.MustRegister(CallDuration)
	prometheus.MustRegister(RingDuration)
	prometheus.MustRegister(FeedEventLatency)
}

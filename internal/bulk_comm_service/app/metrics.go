package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulk_comm",
			Name:      "batches_created_total",
			Help:      "Total bulk communication batches created.",
		},
		[]string{"channel"},
	)

	itemsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulk_comm",
			Name:      "items_processed_total",
			Help:      "Total queue items processed.",
		},
		[]string{"channel", "outcome"}, // outcome: "sent", "retried", "failed"
	)

	cycleDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bulk_comm",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of queue processing cycles.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	providerSendDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bulk_comm",
			Name:      "provider_send_duration_seconds",
			Help:      "Duration of channel provider send calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	rateLimitDeferralsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bulk_comm",
			Name:      "rate_limit_deferrals_total",
			Help:      "Processing cycles deferred because an organization hit its send caps.",
		},
	)
)

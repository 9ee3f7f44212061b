// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	mutationsAccepted    prometheus.Counter
	batchesApplied       prometheus.CounterVec
	batchSize            prometheus.HistogramVec
	conflictsDiscarded   prometheus.CounterVec
	snapshotReads        prometheus.CounterVec
	snapshotsBuilt       prometheus.Counter
	applyElapsedTime     prometheus.Histogram
	openBatches          prometheus.Gauge
	notificationsDropped prometheus.CounterVec
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	mutationsAccepted := factory.NewCounter(
		prometheus.CounterOpts{
			Name: "livescore_mutations_accepted_total",
			Help: "Number of mutations that passed validation and joined a coalescing window",
		})

	batchesApplied := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livescore_batches_total",
			Help: "Number of coalesced batches by outcome and close reason",
		}, []string{"outcome", "close_reason"})

	batchSize := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livescore_batch_mutations",
			Help:    "A histogram of mutations merged into one batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}, []string{"close_reason"})

	conflictsDiscarded := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livescore_conflicts_discarded_total",
			Help: "Field writes discarded because another actor wrote the same field later",
		}, []string{"field"})

	snapshotReads := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livescore_snapshot_reads_total",
			Help: "Snapshot reads by result",
		}, []string{"result"})

	snapshotsBuilt := factory.NewCounter(
		prometheus.CounterOpts{
			Name: "livescore_snapshots_built_total",
			Help: "Number of snapshots assembled",
		})

	//nolint:promlinter
	applyElapsedTime := factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livescore_apply_elapsed_time_ms",
			Help:    "A histogram of batch apply time in milliseconds, persistence included",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		})

	openBatches := factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "livescore_open_batches",
			Help: "Coalescing windows currently open",
		})

	notificationsDropped := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livescore_notifications_dropped_total",
			Help: "Snapshot notifications dropped because a sink queue was full",
		}, []string{"sink"})

	return prometheusMetrics{
		mutationsAccepted:    mutationsAccepted,
		batchesApplied:       *batchesApplied,
		batchSize:            *batchSize,
		conflictsDiscarded:   *conflictsDiscarded,
		snapshotReads:        *snapshotReads,
		snapshotsBuilt:       snapshotsBuilt,
		applyElapsedTime:     applyElapsedTime,
		openBatches:          openBatches,
		notificationsDropped: *notificationsDropped,
	}
}

func (metrics prometheusMetrics) AddMutationAccepted() {
	metrics.mutationsAccepted.Inc()
}

func (metrics prometheusMetrics) AddBatchApplied(outcome string, closeReason string, mutations int) {
	metrics.batchesApplied.With(prometheus.Labels{"outcome": outcome, "close_reason": closeReason}).Inc()
	metrics.batchSize.With(prometheus.Labels{"close_reason": closeReason}).Observe(float64(mutations))
}

func (metrics prometheusMetrics) AddConflictDiscarded(field string) {
	metrics.conflictsDiscarded.With(prometheus.Labels{"field": field}).Inc()
}

func (metrics prometheusMetrics) AddSnapshotRead(result string) {
	metrics.snapshotReads.With(prometheus.Labels{"result": result}).Inc()
}

func (metrics prometheusMetrics) AddSnapshotBuilt() {
	metrics.snapshotsBuilt.Inc()
}

func (metrics prometheusMetrics) AddApplyElapsedTimeMs(elapsedTime time.Duration) {
	metrics.applyElapsedTime.Observe(float64(elapsedTime.Milliseconds()))
}

func (metrics prometheusMetrics) SetOpenBatches(count int) {
	metrics.openBatches.Set(float64(count))
}

func (metrics prometheusMetrics) AddNotificationDropped(sink string) {
	metrics.notificationsDropped.With(prometheus.Labels{"sink": sink}).Inc()
}

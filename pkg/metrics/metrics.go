// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ScoringMetrics interface {
	AddMutationAccepted()
	AddBatchApplied(outcome string, closeReason string, mutations int)
	AddConflictDiscarded(field string)
	AddSnapshotRead(result string)
	AddSnapshotBuilt()
	AddApplyElapsedTimeMs(elapsedTime time.Duration)
	SetOpenBatches(count int)
	AddNotificationDropped(sink string)
}

func NewMetrics(registry *prometheus.Registry) ScoringMetrics {
	return setupPrometheusMetrics(registry)
}

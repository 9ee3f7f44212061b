// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package testsetup

import (
	"sync"
	"time"

	"github.com/bacx00/mrvl-livescore/pkg/metrics"
)

// MetricCounts is what StubMetrics has recorded so far.
type MetricCounts struct {
	MutationsAccepted    int
	BatchesApplied       map[string]int
	ConflictsDiscarded   map[string]int
	SnapshotReads        map[string]int
	SnapshotsBuilt       int
	OpenBatches          int
	NotificationsDropped map[string]int
}

// StubMetrics records what the engine reports so tests can assert on it.
type StubMetrics struct {
	mu sync.Mutex
	MetricCounts
}

func (s *StubMetrics) AddMutationAccepted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MutationsAccepted++
}

func (s *StubMetrics) AddBatchApplied(outcome string, closeReason string, mutations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchesApplied[outcome]++
}

func (s *StubMetrics) AddConflictDiscarded(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConflictsDiscarded[field]++
}

func (s *StubMetrics) AddSnapshotRead(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SnapshotReads[result]++
}

func (s *StubMetrics) AddSnapshotBuilt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SnapshotsBuilt++
}

func (s *StubMetrics) AddApplyElapsedTimeMs(elapsedTime time.Duration) {
}

func (s *StubMetrics) SetOpenBatches(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenBatches = count
}

func (s *StubMetrics) AddNotificationDropped(sink string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NotificationsDropped[sink]++
}

// Counts returns a copy of the counters taken under the lock.
func (s *StubMetrics) Counts() MetricCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MetricCounts{
		MutationsAccepted:    s.MutationsAccepted,
		BatchesApplied:       copyCounts(s.BatchesApplied),
		ConflictsDiscarded:   copyCounts(s.ConflictsDiscarded),
		SnapshotReads:        copyCounts(s.SnapshotReads),
		SnapshotsBuilt:       s.SnapshotsBuilt,
		OpenBatches:          s.OpenBatches,
		NotificationsDropped: copyCounts(s.NotificationsDropped),
	}
}

func copyCounts(counts map[string]int) map[string]int {
	copied := make(map[string]int, len(counts))
	for k, v := range counts {
		copied[k] = v
	}
	return copied
}

func NewStubMetrics() *StubMetrics {
	return &StubMetrics{
		MetricCounts: MetricCounts{
			BatchesApplied:       map[string]int{},
			ConflictsDiscarded:   map[string]int{},
			SnapshotReads:        map[string]int{},
			NotificationsDropped: map[string]int{},
		},
	}
}

func NewMetrics() metrics.ScoringMetrics {
	return NewStubMetrics()
}

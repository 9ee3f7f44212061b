// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elliotchance/pie/v2"

	"github.com/bacx00/mrvl-livescore/pkg/models"
)

// errStateEvicted tells a waiter that its entry was dropped from the engine and the
// match has to be looked up again.
var errStateEvicted = errors.New("match state evicted")

// matchState is the engine's entry for one match. mu guards everything except
// snapshot and evicted, which readers load without locking.
type matchState struct {
	mu         sync.Mutex
	current    *models.Match
	pending    map[string]*batch
	history    *historyRing
	evictTimer *time.Timer

	snapshot atomic.Pointer[models.Snapshot]
	evicted  atomic.Bool

	changedMu sync.Mutex
	changed   chan struct{}
}

func newMatchState(match *models.Match, historySize int) *matchState {
	return &matchState{
		current: match,
		pending: map[string]*batch{},
		history: newHistoryRing(historySize),
		changed: make(chan struct{}),
	}
}

// otherPending returns the open batches of every actor but actorID.
func (st *matchState) otherPending(actorID string) []*batch {
	others := make([]*batch, 0, len(st.pending))
	for id, b := range st.pending {
		if id != actorID {
			others = append(others, b)
		}
	}
	return others
}

// publish freezes match into a new snapshot, makes it visible to readers and wakes
// every watcher.
func (st *matchState) publish(match *models.Match, batchID string, now time.Time) *models.Snapshot {
	snapshot := models.NewSnapshot(*match, batchID, now)

	st.changedMu.Lock()
	st.snapshot.Store(snapshot)
	close(st.changed)
	st.changed = make(chan struct{})
	st.changedMu.Unlock()

	return snapshot
}

// markEvicted flags the entry as dropped and wakes every watcher so it can move
// to the entry that replaces it.
func (st *matchState) markEvicted() {
	st.changedMu.Lock()
	st.evicted.Store(true)
	close(st.changed)
	st.changed = make(chan struct{})
	st.changedMu.Unlock()
}

// watch blocks until a snapshot newer than sinceVersion is published or ctx ends.
func (st *matchState) watch(ctx context.Context, sinceVersion int64) (*models.Snapshot, error) {
	for {
		st.changedMu.Lock()
		snapshot := st.snapshot.Load()
		changed := st.changed
		st.changedMu.Unlock()

		if snapshot != nil && snapshot.Version != sinceVersion {
			return snapshot, nil
		}
		if st.evicted.Load() {
			return nil, errStateEvicted
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// historyRing keeps the most recent applied batches of a match.
type historyRing struct {
	records []models.BatchRecord
	next    int
	full    bool
}

func newHistoryRing(size int) *historyRing {
	if size <= 0 {
		size = 1
	}
	return &historyRing{records: make([]models.BatchRecord, size)}
}

func (h *historyRing) add(record models.BatchRecord) {
	h.records[h.next] = record
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
}

// list returns the records newest first.
func (h *historyRing) list() []models.BatchRecord {
	var ordered []models.BatchRecord
	if h.full {
		ordered = append(ordered, h.records[h.next:]...)
	}
	ordered = append(ordered, h.records[:h.next]...)
	return pie.Reverse(ordered)
}

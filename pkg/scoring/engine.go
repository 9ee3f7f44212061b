// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bacx00/mrvl-livescore/pkg/common"
	"github.com/bacx00/mrvl-livescore/pkg/config"
	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/metrics"
	"github.com/bacx00/mrvl-livescore/pkg/models"
	"github.com/bacx00/mrvl-livescore/pkg/utils"
)

// ErrEngineClosed is returned by Submit and ApplyMutation after Close.
var ErrEngineClosed = errors.New("scoring engine closed")

// Engine owns the live state of every loaded match. Writes to one match are
// serialized by that match's lock; reads go through an atomically published snapshot.
type Engine struct {
	repo      Repository
	validator patchValidator
	metrics   metrics.ScoringMetrics
	policy    coalescePolicy

	storeTimeout time.Duration
	historySize  int
	retention    time.Duration
	clock        func() time.Time
	listeners    []SnapshotListener

	mu      sync.RWMutex
	matches map[string]*matchState

	seq         atomic.Uint64
	openBatches atomic.Int64
	closed      atomic.Bool
}

type Option func(*Engine)

// WithClock replaces time.Now for timestamps written into match state.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithListener registers a listener for every published snapshot.
func WithListener(listener SnapshotListener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, listener)
	}
}

func NewEngine(cfg *config.Config, repo Repository, catalog HeroCatalog, metricsCollector metrics.ScoringMetrics, opts ...Option) *Engine {
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = constants.DefaultHistorySize
	}

	e := &Engine{
		repo:      repo,
		validator: patchValidator{catalog: catalog},
		metrics:   metricsCollector,
		policy: coalescePolicy{
			window:       cfg.CoalesceWindow(),
			maxBatchAge:  cfg.MaxBatchAge(),
			maxBatchSize: cfg.MaxBatchSize,
		},
		storeTimeout: cfg.StoreTimeout(),
		historySize:  historySize,
		retention:    cfg.CompletedRetention(),
		clock:        time.Now,
		matches:      map[string]*matchState{},
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateMatch registers a new series in upcoming status with map records 1..Format.
func (e *Engine) CreateMatch(rootScope *envelope.Scope, request models.CreateMatchRequest) (*models.Snapshot, error) {
	scope := rootScope.NewChildScope("Engine.CreateMatch")
	defer scope.Finish()

	if err := request.Validate(); err != nil {
		problems := &models.ValidationError{}
		problems.Add("request", "%s", err.Error())
		return nil, problems
	}

	now := e.clock()
	if request.ID == "" {
		request.ID = utils.GenerateULID(now)
	}
	scope.SetAttributes(envelope.MatchIDTag, request.ID)

	match := &models.Match{
		ID:              request.ID,
		Status:          models.StatusUpcoming,
		Team1ID:         request.Team1ID,
		Team2ID:         request.Team2ID,
		Format:          request.Format,
		CurrentMapIndex: 1,
		Version:         1,
		UpdatedAt:       now,
		Maps:            make([]models.MapRecord, 0, request.Format),
	}
	for number := 1; number <= request.Format; number++ {
		record := models.MapRecord{
			MapNumber:    number,
			Status:       models.MapStatusUpcoming,
			Compositions: []models.CompositionEntry{},
		}
		if number <= len(request.Maps) {
			seed := request.Maps[number-1]
			record.MapName = seed.MapName
			record.GameMode = seed.GameMode
			record.WinThreshold = seed.WinThreshold
		}
		match.Maps = append(match.Maps, record)
	}
	derive(match, false)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.matches[match.ID]; ok {
		return nil, fmt.Errorf("%w: %s", models.ErrMatchExists, match.ID)
	}

	ctx, cancel := context.WithTimeout(scope.Ctx, e.storeTimeout)
	defer cancel()
	if err := e.repo.Create(ctx, match); err != nil {
		if errors.Is(err, models.ErrMatchExists) {
			return nil, err
		}
		return nil, &models.StoreError{Op: "create", Err: err}
	}

	st := newMatchState(match, e.historySize)
	snapshot := st.publish(match, "", now)
	e.matches[match.ID] = st
	e.metrics.AddSnapshotBuilt()

	scope.Log.WithField(constants.LogFieldMatchID, match.ID).Info("match created")
	e.notify(scope, snapshot)

	return snapshot, nil
}

// ApplyMutation submits patch on behalf of actorID and waits for the coalesced batch
// it joins to be applied. A *models.ConflictDiscardedError comes with a valid snapshot.
func (e *Engine) ApplyMutation(rootScope *envelope.Scope, matchID string, actorID string, patch models.Patch) (*models.Snapshot, error) {
	scope := rootScope.NewChildScope("Engine.ApplyMutation")
	defer scope.Finish()

	ticket, err := e.Submit(scope, matchID, actorID, patch)
	if err != nil {
		return nil, err
	}

	return ticket.Wait(scope.Ctx)
}

// Submit validates patch and merges it into the actor's open batch for the match
// without waiting for the batch to apply.
func (e *Engine) Submit(rootScope *envelope.Scope, matchID string, actorID string, patch models.Patch) (*Ticket, error) {
	scope := rootScope.NewChildScope("Engine.Submit")
	defer scope.Finish()
	scope.SetAttributes(envelope.MatchIDTag, matchID)
	scope.SetAttributes(envelope.ActorIDTag, actorID)

	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	if actorID == "" {
		problems := &models.ValidationError{}
		problems.Add("actor_id", "required")
		return nil, problems
	}

	st, err := e.lockState(scope, matchID)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	pending := st.pending[actorID]
	if err := e.validator.validate(st.current, pending, st.otherPending(actorID), patch); err != nil {
		scope.Log.WithFields(logrus.Fields{
			constants.LogFieldMatchID: matchID,
			constants.LogFieldActorID: actorID,
		}).WithError(err).Debugf("mutation rejected: %s", common.LogJSONFormatter(patch))
		return nil, err
	}

	now := e.clock()
	if pending == nil {
		pending = newBatch(utils.GenerateULID(now), matchID, actorID, scope.TraceID, now)
		st.pending[actorID] = pending
		e.metrics.SetOpenBatches(int(e.openBatches.Add(1)))
	}

	ticket := newTicket(matchID, actorID, pending.id)
	seq := e.seq.Add(1)
	writes := flattenPatch(patch)
	for i := range writes {
		writes[i].Seq = seq
		writes[i].AcceptedAt = now
		writes[i].ActorID = actorID
		writes[i].ticket = ticket
	}
	pending.add(ticket, writes)
	e.metrics.AddMutationAccepted()

	decision := e.policy.decide(pending, now)
	if decision.flushNow {
		e.flush(scope, st, pending, decision.reason)
		return ticket, nil
	}

	pending.closeReason = decision.reason
	if pending.timer == nil {
		closing := pending
		pending.timer = time.AfterFunc(decision.delay, func() {
			e.closeWindow(st, closing)
		})
	} else {
		pending.timer.Reset(decision.delay)
	}

	return ticket, nil
}

// GetSnapshot returns the latest snapshot of a match. When sinceVersion equals the
// current version it returns (nil, false, nil) without building anything. Any other
// sinceVersion, greater ones included, returns the current snapshot.
func (e *Engine) GetSnapshot(rootScope *envelope.Scope, matchID string, sinceVersion int64) (*models.Snapshot, bool, error) {
	st, err := e.loadState(rootScope, matchID)
	if err != nil {
		return nil, false, err
	}

	snapshot := st.snapshot.Load()
	if snapshot.Version == sinceVersion {
		e.metrics.AddSnapshotRead(constants.ReadNotModified)
		return nil, false, nil
	}

	e.metrics.AddSnapshotRead(constants.ReadModified)
	return snapshot, true, nil
}

// Watch blocks until the match has a snapshot whose version differs from sinceVersion,
// or scope.Ctx ends.
func (e *Engine) Watch(rootScope *envelope.Scope, matchID string, sinceVersion int64) (*models.Snapshot, error) {
	scope := rootScope.NewChildScope("Engine.Watch")
	defer scope.Finish()

	for {
		st, err := e.loadState(scope, matchID)
		if err != nil {
			return nil, err
		}

		snapshot, err := st.watch(scope.Ctx, sinceVersion)
		if errors.Is(err, errStateEvicted) {
			continue
		}
		if err != nil {
			return nil, err
		}

		e.metrics.AddSnapshotRead(constants.ReadModified)
		return snapshot, nil
	}
}

// History returns the most recently applied batches of a match, newest first.
func (e *Engine) History(rootScope *envelope.Scope, matchID string) ([]models.BatchRecord, error) {
	scope := rootScope.NewChildScope("Engine.History")
	defer scope.Finish()

	st, err := e.lockState(scope, matchID)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	return st.history.list(), nil
}

// Flush applies every open batch of every match right away.
func (e *Engine) Flush(rootScope *envelope.Scope) {
	scope := rootScope.NewChildScope("Engine.Flush")
	defer scope.Finish()

	e.mu.RLock()
	states := make([]*matchState, 0, len(e.matches))
	for _, st := range e.matches {
		states = append(states, st)
	}
	e.mu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		for _, pending := range st.pending {
			e.flush(scope, st, pending, constants.CloseReasonFlush)
		}
		st.mu.Unlock()
	}
}

// Close stops accepting mutations and applies what is still pending.
func (e *Engine) Close(rootScope *envelope.Scope) {
	if e.closed.Swap(true) {
		return
	}
	e.Flush(rootScope)
}

// loadState returns the entry for matchID, loading it from the repository on first use.
func (e *Engine) loadState(scope *envelope.Scope, matchID string) (*matchState, error) {
	e.mu.RLock()
	st, ok := e.matches[matchID]
	e.mu.RUnlock()
	if ok {
		return st, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if st, ok := e.matches[matchID]; ok {
		return st, nil
	}

	ctx, cancel := context.WithTimeout(scope.Ctx, e.storeTimeout)
	defer cancel()

	match, err := e.repo.Load(ctx, matchID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, &models.StoreError{Op: "load", Err: err}
	}

	st = newMatchState(match, e.historySize)
	st.publish(match, "", e.clock())
	e.metrics.AddSnapshotBuilt()
	e.matches[matchID] = st
	e.scheduleEviction(st)

	scope.Log.WithFields(logrus.Fields{
		constants.LogFieldMatchID: matchID,
		constants.LogFieldVersion: match.Version,
	}).Debug("match loaded")

	return st, nil
}

// lockState returns the entry for matchID with its lock held. An entry evicted while
// the caller waited for the lock is replaced by a fresh load.
func (e *Engine) lockState(scope *envelope.Scope, matchID string) (*matchState, error) {
	for {
		st, err := e.loadState(scope, matchID)
		if err != nil {
			return nil, err
		}

		st.mu.Lock()
		if !st.evicted.Load() {
			return st, nil
		}
		st.mu.Unlock()
	}
}

// scheduleEviction starts or restarts the retention timer of a completed match.
// It must be called with st.mu held or before st is shared.
func (e *Engine) scheduleEviction(st *matchState) {
	if e.retention <= 0 || st.current.Status != models.StatusCompleted {
		return
	}
	if st.evictTimer != nil {
		st.evictTimer.Reset(e.retention)
		return
	}
	st.evictTimer = time.AfterFunc(e.retention, func() {
		e.evict(st)
	})
}

// evict drops a completed match without open batches from memory. The next read
// loads it back from the repository.
func (e *Engine) evict(st *matchState) {
	scope := envelope.NewRootScope(context.Background(), "Engine.evict", "")
	defer scope.Finish()

	e.mu.Lock()
	defer e.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.evictTimer = nil
	matchID := st.current.ID
	if st.evicted.Load() || e.matches[matchID] != st || st.current.Status != models.StatusCompleted {
		return
	}
	if len(st.pending) > 0 {
		e.scheduleEviction(st)
		return
	}

	delete(e.matches, matchID)
	st.markEvicted()

	scope.Log.WithFields(logrus.Fields{
		constants.LogFieldMatchID: matchID,
		constants.LogFieldVersion: st.current.Version,
	}).Debug("completed match evicted")
}

// closeWindow runs on the batch timer.
func (e *Engine) closeWindow(st *matchState, closing *batch) {
	scope := envelope.NewRootScope(context.Background(), "Engine.closeWindow", closing.traceID)
	defer scope.Finish()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.pending[closing.actorID] != closing {
		return
	}
	e.flush(scope, st, closing, closing.closeReason)
}

// rejectSideSwap reports a player write that was skipped because the player is
// already on the other side of the map.
func (e *Engine) rejectSideSwap(log *logrus.Entry, closing *batch, write fieldWrite) {
	closing.discarded++
	e.metrics.AddConflictDiscarded(string(write.Key.Name))

	conflict := models.Conflict{
		Field:          write.Key.String(),
		DiscardedValue: write.Value,
		DiscardedBy:    write.ActorID,
		WinningValue:   string(write.Key.Side.Other()),
	}
	if write.ticket != nil {
		write.ticket.addConflict(conflict)
	}

	log.WithFields(logrus.Fields{
		"field":    conflict.Field,
		"playerId": write.Key.PlayerID,
	}).Warn("player write discarded, player plays for the other side")
}

// flush applies closing as one atomic step. It must be called with st.mu held.
// The new state is committed and published only after the repository accepted it.
func (e *Engine) flush(rootScope *envelope.Scope, st *matchState, closing *batch, reason string) {
	scope := rootScope.NewChildScope("Engine.flush")
	defer scope.Finish()

	start := time.Now()
	closing.stopTimer()
	delete(st.pending, closing.actorID)
	e.metrics.SetOpenBatches(int(e.openBatches.Add(-1)))

	log := scope.Log.WithFields(logrus.Fields{
		constants.LogFieldMatchID: closing.matchID,
		constants.LogFieldActorID: closing.actorID,
		constants.LogFieldBatchID: closing.id,
	})

	resolveConflicts(scope, closing, st.otherPending(closing.actorID), e.metrics)

	writes := closing.orderedWrites()
	defer writeBuffers.Put(writes)

	now := e.clock()
	next := st.current.Copy()
	seriesTouched, rejected, err := applyWrites(&next, writes, now)
	if err != nil {
		log.WithError(err).Warn("batch rejected")
		e.failBatch(closing, constants.OutcomeInvalidTransition, reason, err)
		return
	}
	for _, write := range rejected {
		e.rejectSideSwap(log, closing, write)
	}

	derive(&next, seriesTouched)
	next.Version = st.current.Version + 1
	next.UpdatedAt = now
	next.UpdatedBy = closing.actorID

	ctx, cancel := context.WithTimeout(context.Background(), e.storeTimeout)
	defer cancel()
	if err := e.repo.Save(ctx, &next); err != nil {
		log.WithError(err).Error("unable to save match")
		e.failBatch(closing, constants.OutcomeStoreError, reason, &models.StoreError{Op: "save", Err: err})
		return
	}

	st.current = &next
	snapshot := st.publish(&next, closing.id, now)
	e.metrics.AddSnapshotBuilt()
	e.scheduleEviction(st)

	st.history.add(models.BatchRecord{
		BatchID:     closing.id,
		ActorID:     closing.actorID,
		Version:     next.Version,
		Mutations:   closing.mutations,
		Fields:      len(writes),
		Discarded:   closing.discarded,
		CloseReason: reason,
		OpenedAt:    closing.openedAt,
		AppliedAt:   now,
	})

	for _, ticket := range closing.tickets {
		ticket.resolve(snapshot, nil)
	}

	e.metrics.AddBatchApplied(constants.OutcomeApplied, reason, closing.mutations)
	e.metrics.AddApplyElapsedTimeMs(time.Since(start))
	scope.SetAttributes(envelope.VersionTag, next.Version)

	log.WithFields(logrus.Fields{
		constants.LogFieldVersion: next.Version,
		"mutations":               closing.mutations,
		"closeReason":             reason,
	}).Debug("batch applied")

	e.notify(scope, snapshot)
}

func (e *Engine) failBatch(closing *batch, outcome string, reason string, err error) {
	for _, ticket := range closing.tickets {
		ticket.resolve(nil, err)
	}
	e.metrics.AddBatchApplied(outcome, reason, closing.mutations)
}

func (e *Engine) notify(scope *envelope.Scope, snapshot *models.Snapshot) {
	for _, listener := range e.listeners {
		listener.OnSnapshot(scope, snapshot)
	}
}

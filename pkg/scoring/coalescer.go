// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"sort"
	"time"

	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/models"
)

var writeBuffers = models.NewPool[fieldWrite](32)

// batch is the open coalescing window of one actor on one match. Later writes to a
// field replace earlier ones, so only the last submitted value is ever applied.
type batch struct {
	id       string
	matchID  string
	actorID  string
	traceID  string
	openedAt time.Time

	writes    map[fieldKey]fieldWrite
	tickets   []*Ticket
	mutations int
	discarded int

	closeReason string
	timer       *time.Timer
}

func newBatch(id, matchID, actorID, traceID string, openedAt time.Time) *batch {
	return &batch{
		id:       id,
		matchID:  matchID,
		actorID:  actorID,
		traceID:  traceID,
		openedAt: openedAt,
		writes:   map[fieldKey]fieldWrite{},
	}
}

func (b *batch) add(ticket *Ticket, writes []fieldWrite) {
	for _, write := range writes {
		b.writes[write.Key] = write
	}
	b.tickets = append(b.tickets, ticket)
	b.mutations++
}

// discard drops the write for key, which lost a conflict.
func (b *batch) discard(key fieldKey) {
	delete(b.writes, key)
	b.discarded++
}

func (b *batch) pendingStatus() (models.MatchStatus, bool) {
	if b == nil {
		return "", false
	}
	write, ok := b.writes[fieldKey{Name: fieldStatus}]
	if !ok {
		return "", false
	}
	return write.Value.(models.MatchStatus), true
}

// addsPlayer reports whether the batch picks a hero for the player on the map.
func (b *batch) addsPlayer(mapNumber int, side models.Side, playerID string) bool {
	if b == nil {
		return false
	}
	_, ok := b.writes[fieldKey{MapNumber: mapNumber, Side: side, PlayerID: playerID, Name: fieldHero}]
	return ok
}

// playerSide returns the side the batch writes playerID on for the map.
func (b *batch) playerSide(mapNumber int, playerID string) (models.Side, bool) {
	if b == nil {
		return "", false
	}
	for key := range b.writes {
		if key.MapNumber == mapNumber && key.PlayerID == playerID {
			return key.Side, true
		}
	}
	return "", false
}

// orderedWrites returns the writes by acceptance order, and by position within a
// patch, in a pooled buffer; the caller hands it back with writeBuffers.Put.
func (b *batch) orderedWrites() []fieldWrite {
	writes := writeBuffers.Get()
	for _, write := range b.writes {
		writes = append(writes, write)
	}
	sort.SliceStable(writes, func(i, j int) bool {
		if writes[i].Seq != writes[j].Seq {
			return writes[i].Seq < writes[j].Seq
		}
		return writes[i].Pos < writes[j].Pos
	})
	return writes
}

func (b *batch) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
	}
}

// scheduleDecision tells the engine how to close b after it accepted a mutation at
// now: immediately with a reason, or after a delay.
type scheduleDecision struct {
	flushNow bool
	delay    time.Duration
	reason   string
}

type coalescePolicy struct {
	window       time.Duration
	maxBatchAge  time.Duration
	maxBatchSize int
}

func (p coalescePolicy) decide(b *batch, now time.Time) scheduleDecision {
	if p.window <= 0 {
		return scheduleDecision{flushNow: true, reason: constants.CloseReasonImmediate}
	}

	if p.maxBatchSize > 0 && b.mutations >= p.maxBatchSize {
		return scheduleDecision{flushNow: true, reason: constants.CloseReasonMaxSize}
	}

	decision := scheduleDecision{delay: p.window, reason: constants.CloseReasonWindow}
	if p.maxBatchAge > 0 {
		remaining := b.openedAt.Add(p.maxBatchAge).Sub(now)
		if remaining <= 0 {
			return scheduleDecision{flushNow: true, reason: constants.CloseReasonMaxAge}
		}
		if remaining < decision.delay {
			decision = scheduleDecision{delay: remaining, reason: constants.CloseReasonMaxAge}
		}
	}

	return decision
}

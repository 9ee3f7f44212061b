// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"context"

	"github.com/bacx00/mrvl-livescore/pkg/models"
)

// Ticket is the receipt of one accepted mutation. It resolves once the batch the
// mutation joined has been applied, or has failed.
type Ticket struct {
	MatchID string
	ActorID string
	BatchID string

	done      chan struct{}
	snapshot  *models.Snapshot
	err       error
	conflicts []models.Conflict
}

func newTicket(matchID, actorID, batchID string) *Ticket {
	return &Ticket{
		MatchID: matchID,
		ActorID: actorID,
		BatchID: batchID,
		done:    make(chan struct{}),
	}
}

// Done is closed once the ticket is resolved.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the batch is applied or ctx ends. When some of the mutation's
// fields lost to a later write by another actor, the snapshot is returned together
// with a *models.ConflictDiscardedError. An ended ctx does not withdraw the mutation.
func (t *Ticket) Wait(ctx context.Context) (*models.Snapshot, error) {
	select {
	case <-t.done:
		return t.result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Ticket) result() (*models.Snapshot, error) {
	if t.err != nil {
		return nil, t.err
	}
	if len(t.conflicts) > 0 {
		conflicts := make([]models.Conflict, len(t.conflicts))
		copy(conflicts, t.conflicts)
		return t.snapshot, &models.ConflictDiscardedError{Conflicts: conflicts}
	}
	return t.snapshot, nil
}

// addConflict and resolve are only called with the match locked.
func (t *Ticket) addConflict(conflict models.Conflict) {
	t.conflicts = append(t.conflicts, conflict)
}

func (t *Ticket) resolve(snapshot *models.Snapshot, err error) {
	t.snapshot = snapshot
	t.err = err
	close(t.done)
}

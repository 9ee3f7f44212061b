// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"github.com/elliotchance/pie/v2"
	"github.com/sirupsen/logrus"

	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/metrics"
	"github.com/bacx00/mrvl-livescore/pkg/models"
)

// resolveConflicts settles every field that closing touches and that one of the other
// pending batches also touches. The write accepted last wins; the other one is removed
// from its batch and reported to the ticket that submitted it.
func resolveConflicts(scope *envelope.Scope, closing *batch, others []*batch, metricsCollector metrics.ScoringMetrics) {
	if len(others) == 0 {
		return
	}

	keys := pie.SortUsing(pie.Keys(closing.writes), func(a, b fieldKey) bool {
		return a.String() < b.String()
	})

	for _, key := range keys {
		for _, other := range others {
			theirs, ok := other.writes[key]
			if !ok {
				continue
			}
			ours, ok := closing.writes[key]
			if !ok {
				break
			}

			winner, loser, losingBatch := ours, theirs, other
			if theirs.Seq > ours.Seq {
				winner, loser, losingBatch = theirs, ours, closing
			}
			losingBatch.discard(key)

			conflict := models.Conflict{
				Field:          key.String(),
				DiscardedValue: loser.Value,
				DiscardedBy:    loser.ActorID,
				WinningValue:   winner.Value,
				WinningActor:   winner.ActorID,
			}
			if loser.ticket != nil {
				loser.ticket.addConflict(conflict)
			}
			metricsCollector.AddConflictDiscarded(string(key.Name))

			scope.Log.WithFields(logrus.Fields{
				constants.LogFieldMatchID: closing.matchID,
				"field":                   conflict.Field,
				"winningActor":            winner.ActorID,
				"discardedActor":          loser.ActorID,
			}).Warn("conflicting write discarded")
		}
	}
}

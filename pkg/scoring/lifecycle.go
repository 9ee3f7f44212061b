// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"time"

	"github.com/bacx00/mrvl-livescore/pkg/models"
	"github.com/bacx00/mrvl-livescore/pkg/utils"
)

// allowedTransitions is the lifecycle graph. completed and cancelled are terminal.
var allowedTransitions = map[models.MatchStatus][]models.MatchStatus{
	models.StatusUpcoming: {models.StatusLive},
	models.StatusLive:     {models.StatusPaused, models.StatusCompleted},
	models.StatusPaused:   {models.StatusLive, models.StatusCompleted},
}

// CanTransition reports whether a single mutation may move a match from one status to
// another. Writing the current status again is always allowed and changes nothing.
func CanTransition(from, to models.MatchStatus) bool {
	if from == to {
		return true
	}
	return utils.Contains(allowedTransitions[from], to)
}

// canReach reports whether to is reachable from from through any number of legal
// transitions. A coalesced batch may carry live then paused from upcoming, and only
// the last write of the status field survives the merge.
func canReach(from, to models.MatchStatus) bool {
	if from == to {
		return true
	}

	visited := map[models.MatchStatus]bool{from: true}
	queue := []models.MatchStatus{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range allowedTransitions[current] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	return false
}

func checkTransition(from, to models.MatchStatus) error {
	if !CanTransition(from, to) {
		return &models.TransitionError{From: from, To: to}
	}
	return nil
}

// applyStatus moves match to status, stamping started_at when the match first leaves
// upcoming and ended_at when it completes.
func applyStatus(match *models.Match, status models.MatchStatus, now time.Time) error {
	if match.Status == status {
		return nil
	}

	if !canReach(match.Status, status) {
		return &models.TransitionError{From: match.Status, To: status}
	}

	if match.Status == models.StatusUpcoming && match.StartedAt == nil {
		match.StartedAt = utils.Ptr(now)
	}
	if status == models.StatusCompleted && match.EndedAt == nil {
		match.EndedAt = utils.Ptr(now)
	}
	match.Status = status

	return nil
}

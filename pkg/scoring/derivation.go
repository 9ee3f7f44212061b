// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"github.com/bacx00/mrvl-livescore/pkg/models"
	"github.com/bacx00/mrvl-livescore/pkg/utils"
)

// derive recomputes every derived field of match in place. seriesTouched tells
// whether the batch wrote an input that can decide the series; only then may a
// previously decided winner be cleared.
func derive(match *models.Match, seriesTouched bool) {
	for i := range match.Maps {
		match.Maps[i].Winner = mapWinner(match, &match.Maps[i])
	}

	if !match.SeriesScoreExplicit {
		match.Team1Score, match.Team2Score = countMapWins(match)
	}

	match.WinnerID = seriesWinner(match, seriesTouched)
	match.Decided = match.WinnerID != nil
}

// mapWinner: override, then forfeit (no winner without an override), then the win
// threshold, then the higher score of a completed map.
func mapWinner(match *models.Match, record *models.MapRecord) *string {
	if record.WinnerOverride != nil {
		return utils.Ptr(*record.WinnerOverride)
	}

	if record.Status == models.MapStatusForfeit {
		return nil
	}

	if record.WinThreshold > 0 {
		switch {
		case record.Team1Score >= record.WinThreshold && record.Team1Score > record.Team2Score:
			return utils.Ptr(match.Team1ID)
		case record.Team2Score >= record.WinThreshold && record.Team2Score > record.Team1Score:
			return utils.Ptr(match.Team2ID)
		}
	}

	if record.Status == models.MapStatusCompleted {
		switch {
		case record.Team1Score > record.Team2Score:
			return utils.Ptr(match.Team1ID)
		case record.Team2Score > record.Team1Score:
			return utils.Ptr(match.Team2ID)
		}
	}

	return nil
}

func countMapWins(match *models.Match) (team1 int, team2 int) {
	for _, record := range match.Maps {
		if record.Winner == nil {
			continue
		}
		switch *record.Winner {
		case match.Team1ID:
			team1++
		case match.Team2ID:
			team2++
		}
	}
	return team1, team2
}

func seriesWinner(match *models.Match, seriesTouched bool) *string {
	if match.WinnerOverride != nil {
		return utils.Ptr(*match.WinnerOverride)
	}

	needed := match.WinsNeeded()
	team1Decided := match.Team1Score >= needed
	team2Decided := match.Team2Score >= needed

	switch {
	case team1Decided && !team2Decided:
		return utils.Ptr(match.Team1ID)
	case team2Decided && !team1Decided:
		return utils.Ptr(match.Team2ID)
	case team1Decided && team2Decided:
		// contradictory explicit scores keep whatever was decided before
		return match.WinnerID
	}

	if seriesTouched {
		return nil
	}
	return match.WinnerID
}

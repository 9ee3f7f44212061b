// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"fmt"
	"time"

	"github.com/bacx00/mrvl-livescore/pkg/models"
	"github.com/bacx00/mrvl-livescore/pkg/utils"
)

// applyWrites assigns writes to match in the given order. It reports whether any
// series deciding input was written, and returns the player writes it skipped
// because the player already plays for the other side of the map. A status write
// that cannot be reached from the current status aborts the whole batch; the caller
// discards match in that case.
func applyWrites(match *models.Match, writes []fieldWrite, now time.Time) (seriesTouched bool, rejected []fieldWrite, err error) {
	for _, write := range writes {
		if write.Key.decidesSeries() {
			seriesTouched = true
		}

		if write.Key.MapNumber == 0 {
			if err := applySeriesField(match, write, now); err != nil {
				return seriesTouched, nil, err
			}
			continue
		}

		record := match.Map(write.Key.MapNumber)
		if record == nil {
			return seriesTouched, nil, &models.NotFoundError{Kind: "map", Ref: fmt.Sprint(write.Key.MapNumber)}
		}

		if write.Key.PlayerID == "" {
			applyMapField(record, write)
			continue
		}

		entry := record.Composition(write.Key.Side, write.Key.PlayerID)
		if entry == nil {
			if record.HasPlayer(write.Key.PlayerID) {
				rejected = append(rejected, write)
				continue
			}
			record.Compositions = append(record.Compositions, models.CompositionEntry{
				PlayerID: write.Key.PlayerID,
				Side:     write.Key.Side,
			})
			entry = &record.Compositions[len(record.Compositions)-1]
		}
		applyCompositionField(entry, write)
	}

	return seriesTouched, rejected, nil
}

func applySeriesField(match *models.Match, write fieldWrite, now time.Time) error {
	switch write.Key.Name {
	case fieldStatus:
		return applyStatus(match, write.Value.(models.MatchStatus), now)
	case fieldTeam1Score:
		match.Team1Score = write.Value.(int)
		match.SeriesScoreExplicit = true
	case fieldTeam2Score:
		match.Team2Score = write.Value.(int)
		match.SeriesScoreExplicit = true
	case fieldCurrentMapIndex:
		match.CurrentMapIndex = write.Value.(int)
	case fieldWinnerOverride:
		match.WinnerOverride = optionalTeam(write.Value.(string))
	case fieldSeriesScoreExplicit:
		match.SeriesScoreExplicit = write.Value.(bool)
	}
	return nil
}

func applyMapField(record *models.MapRecord, write fieldWrite) {
	switch write.Key.Name {
	case fieldMapName:
		record.MapName = write.Value.(string)
	case fieldGameMode:
		record.GameMode = write.Value.(string)
	case fieldMapTeam1Score:
		record.Team1Score = write.Value.(int)
	case fieldMapTeam2Score:
		record.Team2Score = write.Value.(int)
	case fieldMapStatus:
		record.Status = write.Value.(models.MapStatus)
	case fieldMapWinThreshold:
		record.WinThreshold = write.Value.(int)
	case fieldMapWinnerOverride:
		record.WinnerOverride = optionalTeam(write.Value.(string))
	}
}

func applyCompositionField(entry *models.CompositionEntry, write fieldWrite) {
	switch write.Key.Name {
	case fieldPlayerName:
		entry.PlayerName = write.Value.(string)
	case fieldHero:
		entry.Hero = write.Value.(string)
	case fieldEliminations:
		entry.Eliminations = write.Value.(int)
	case fieldDeaths:
		entry.Deaths = write.Value.(int)
	case fieldAssists:
		entry.Assists = write.Value.(int)
	case fieldDamage:
		entry.Damage = write.Value.(int)
	case fieldHealing:
		entry.Healing = write.Value.(int)
	case fieldDamageBlocked:
		entry.DamageBlocked = write.Value.(int)
	}
}

// optionalTeam maps the empty string, which clears an override, to nil.
func optionalTeam(teamID string) *string {
	if teamID == "" {
		return nil
	}
	return utils.Ptr(teamID)
}

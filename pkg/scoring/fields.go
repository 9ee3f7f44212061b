// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"fmt"
	"time"

	"github.com/bacx00/mrvl-livescore/pkg/models"
)

type fieldName string

const (
	fieldStatus              fieldName = "status"
	fieldTeam1Score          fieldName = "team1_score"
	fieldTeam2Score          fieldName = "team2_score"
	fieldCurrentMapIndex     fieldName = "current_map_index"
	fieldWinnerOverride      fieldName = "winner_override"
	fieldSeriesScoreExplicit fieldName = "series_score_explicit"

	fieldMapName           fieldName = "map_name"
	fieldGameMode          fieldName = "game_mode"
	fieldMapTeam1Score     fieldName = "map_team1_score"
	fieldMapTeam2Score     fieldName = "map_team2_score"
	fieldMapStatus         fieldName = "map_status"
	fieldMapWinThreshold   fieldName = "win_threshold"
	fieldMapWinnerOverride fieldName = "map_winner_override"

	fieldPlayerName    fieldName = "player_name"
	fieldHero          fieldName = "hero"
	fieldEliminations  fieldName = "eliminations"
	fieldDeaths        fieldName = "deaths"
	fieldAssists       fieldName = "assists"
	fieldDamage        fieldName = "damage"
	fieldHealing       fieldName = "healing"
	fieldDamageBlocked fieldName = "damage_blocked"
)

// fieldKey addresses one scalar of the match state. MapNumber is 0 for series
// level fields and PlayerID is empty for map level fields.
type fieldKey struct {
	MapNumber int
	Side      models.Side
	PlayerID  string
	Name      fieldName
}

func (k fieldKey) String() string {
	switch {
	case k.MapNumber == 0:
		return string(k.Name)
	case k.PlayerID == "":
		return fmt.Sprintf("maps[%d].%s", k.MapNumber, k.Name)
	default:
		return fmt.Sprintf("maps[%d].compositions[%s/%s].%s", k.MapNumber, k.Side, k.PlayerID, k.Name)
	}
}

// decidesSeries reports whether writing this field can change the series winner.
func (k fieldKey) decidesSeries() bool {
	switch k.Name {
	case fieldTeam1Score, fieldTeam2Score, fieldWinnerOverride, fieldSeriesScoreExplicit,
		fieldMapTeam1Score, fieldMapTeam2Score, fieldMapStatus, fieldMapWinThreshold, fieldMapWinnerOverride:
		return true
	}
	return false
}

// fieldWrite is one accepted field assignment. Seq is the engine wide acceptance
// order and decides conflicts between actors; Pos orders the writes of one patch.
type fieldWrite struct {
	Key        fieldKey
	Value      interface{}
	Seq        uint64
	Pos        int
	AcceptedAt time.Time
	ActorID    string

	ticket *Ticket
}

// flattenPatch turns a validated patch into field writes.
func flattenPatch(patch models.Patch) []fieldWrite {
	writes := make([]fieldWrite, 0, 8)
	add := func(key fieldKey, value interface{}) {
		writes = append(writes, fieldWrite{Key: key, Value: value, Pos: len(writes)})
	}

	if patch.Status != nil {
		add(fieldKey{Name: fieldStatus}, *patch.Status)
	}
	if patch.Team1Score != nil {
		add(fieldKey{Name: fieldTeam1Score}, *patch.Team1Score)
	}
	if patch.Team2Score != nil {
		add(fieldKey{Name: fieldTeam2Score}, *patch.Team2Score)
	}
	if patch.CurrentMapIndex != nil {
		add(fieldKey{Name: fieldCurrentMapIndex}, *patch.CurrentMapIndex)
	}
	if patch.WinnerOverride != nil {
		add(fieldKey{Name: fieldWinnerOverride}, *patch.WinnerOverride)
	}
	if patch.ClearSeriesScoreOverride {
		add(fieldKey{Name: fieldSeriesScoreExplicit}, false)
	}

	for _, mp := range patch.Maps {
		mapKey := func(name fieldName) fieldKey {
			return fieldKey{MapNumber: mp.MapNumber, Name: name}
		}
		if mp.MapName != nil {
			add(mapKey(fieldMapName), *mp.MapName)
		}
		if mp.GameMode != nil {
			add(mapKey(fieldGameMode), *mp.GameMode)
		}
		if mp.Team1Score != nil {
			add(mapKey(fieldMapTeam1Score), *mp.Team1Score)
		}
		if mp.Team2Score != nil {
			add(mapKey(fieldMapTeam2Score), *mp.Team2Score)
		}
		if mp.Status != nil {
			add(mapKey(fieldMapStatus), *mp.Status)
		}
		if mp.WinThreshold != nil {
			add(mapKey(fieldMapWinThreshold), *mp.WinThreshold)
		}
		if mp.WinnerOverride != nil {
			add(mapKey(fieldMapWinnerOverride), *mp.WinnerOverride)
		}

		for _, cp := range mp.Compositions {
			playerKey := func(name fieldName) fieldKey {
				return fieldKey{MapNumber: mp.MapNumber, Side: cp.Side, PlayerID: cp.PlayerID, Name: name}
			}
			if cp.PlayerName != nil {
				add(playerKey(fieldPlayerName), *cp.PlayerName)
			}
			if cp.Hero != nil {
				add(playerKey(fieldHero), *cp.Hero)
			}
			for _, stat := range []struct {
				name  fieldName
				value *int
			}{
				{fieldEliminations, cp.Eliminations},
				{fieldDeaths, cp.Deaths},
				{fieldAssists, cp.Assists},
				{fieldDamage, cp.Damage},
				{fieldHealing, cp.Healing},
				{fieldDamageBlocked, cp.DamageBlocked},
			} {
				if stat.value != nil {
					add(playerKey(stat.name), *stat.value)
				}
			}
		}
	}

	return writes
}

// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"fmt"

	"github.com/bacx00/mrvl-livescore/pkg/models"
	"github.com/bacx00/mrvl-livescore/pkg/utils"
)

const maxLabelLength = 64

// patchValidator checks a patch in full against the current match and the actor's
// open batch. Nothing is written unless every check passes.
type patchValidator struct {
	catalog HeroCatalog
}

// validate returns a *models.ValidationError listing every problem, or else a
// *models.TransitionError, or else a *models.NotFoundError for stat updates that
// address a player who is not on the map. others are the open batches of the other
// actors on the match.
func (v patchValidator) validate(match *models.Match, pending *batch, others []*batch, patch models.Patch) error {
	problems := &models.ValidationError{}

	if patch.IsEmpty() {
		problems.Add("patch", "must change at least one field")
		return problems
	}

	if patch.Status != nil && !utils.Contains(models.AvailableMatchStatuses, *patch.Status) {
		problems.Add("status", "unknown status %q", *patch.Status)
	}
	v.checkSeriesScore(problems, match, "team1_score", patch.Team1Score)
	v.checkSeriesScore(problems, match, "team2_score", patch.Team2Score)
	if patch.CurrentMapIndex != nil && (*patch.CurrentMapIndex < 1 || *patch.CurrentMapIndex > match.Format) {
		problems.Add("current_map_index", "must be within 1..%d", match.Format)
	}
	v.checkOverride(problems, match, "winner_override", patch.WinnerOverride)

	var missing *models.NotFoundError
	seenMaps := map[int]bool{}
	for i, mp := range patch.Maps {
		path := fmt.Sprintf("maps[%d]", i)
		if mp.MapNumber < 1 || mp.MapNumber > match.Format {
			problems.Add(path+".map_number", "must be within 1..%d", match.Format)
			continue
		}
		if seenMaps[mp.MapNumber] {
			problems.Add(path+".map_number", "map %d appears more than once", mp.MapNumber)
			continue
		}
		seenMaps[mp.MapNumber] = true

		v.checkLabel(problems, path+".map_name", mp.MapName)
		v.checkLabel(problems, path+".game_mode", mp.GameMode)
		v.checkNonNegative(problems, path+".team1_score", mp.Team1Score)
		v.checkNonNegative(problems, path+".team2_score", mp.Team2Score)
		v.checkNonNegative(problems, path+".win_threshold", mp.WinThreshold)
		if mp.Status != nil && !utils.Contains(models.AvailableMapStatuses, *mp.Status) {
			problems.Add(path+".status", "unknown map status %q", *mp.Status)
		}
		v.checkOverride(problems, match, path+".winner_override", mp.WinnerOverride)

		record := match.Map(mp.MapNumber)
		seenPlayers := map[string]models.Side{}
		for j, cp := range mp.Compositions {
			entryPath := fmt.Sprintf("%s.compositions[%d]", path, j)
			if err := cp.Validate(); err != nil {
				problems.Add(entryPath, "%s", err.Error())
				continue
			}
			if _, ok := seenPlayers[cp.PlayerID]; ok {
				problems.Add(entryPath+".player_id", "player %s appears more than once", cp.PlayerID)
				continue
			}
			seenPlayers[cp.PlayerID] = cp.Side

			if v.onOtherSide(record, append(others, pending), mp.MapNumber, cp) {
				problems.Add(entryPath+".side", "player %s already plays for the other side", cp.PlayerID)
			}
			if cp.Hero != nil && !v.catalog.IsValidHero(*cp.Hero) {
				problems.Add(entryPath+".hero", "unknown hero %q", *cp.Hero)
			}
			v.checkLabel(problems, entryPath+".player_name", cp.PlayerName)
			v.checkNonNegative(problems, entryPath+".eliminations", cp.Eliminations)
			v.checkNonNegative(problems, entryPath+".deaths", cp.Deaths)
			v.checkNonNegative(problems, entryPath+".assists", cp.Assists)
			v.checkNonNegative(problems, entryPath+".damage", cp.Damage)
			v.checkNonNegative(problems, entryPath+".healing", cp.Healing)
			v.checkNonNegative(problems, entryPath+".damage_blocked", cp.DamageBlocked)

			if missing == nil && cp.Hero == nil && !v.playerKnown(record, pending, mp.MapNumber, cp) {
				missing = &models.NotFoundError{
					Kind: "player",
					Ref:  fmt.Sprintf("%s on map %d", cp.PlayerID, mp.MapNumber),
				}
			}
		}
	}

	if err := problems.ErrOrNil(); err != nil {
		return err
	}

	if patch.Status != nil {
		if err := checkTransition(effectiveStatus(match, pending), *patch.Status); err != nil {
			return err
		}
	}

	if missing != nil {
		return missing
	}

	return nil
}

func (v patchValidator) checkSeriesScore(problems *models.ValidationError, match *models.Match, field string, score *int) {
	if score == nil {
		return
	}
	if *score < 0 || *score > match.Format {
		problems.Add(field, "must be within 0..%d", match.Format)
	}
}

func (v patchValidator) checkNonNegative(problems *models.ValidationError, field string, value *int) {
	if value != nil && *value < 0 {
		problems.Add(field, "cannot be negative")
	}
}

func (v patchValidator) checkLabel(problems *models.ValidationError, field string, value *string) {
	if value != nil && len(*value) > maxLabelLength {
		problems.Add(field, "longer than %d characters", maxLabelLength)
	}
}

// checkOverride accepts either team of the match, or an empty string to clear.
func (v patchValidator) checkOverride(problems *models.ValidationError, match *models.Match, field string, override *string) {
	if override == nil || *override == "" {
		return
	}
	if !match.IsTeam(*override) {
		problems.Add(field, "team %s does not play in this match", *override)
	}
}

// onOtherSide reports whether cp's player is on the map for the opposite side, either
// committed or written by a batch that is still open.
func (v patchValidator) onOtherSide(record *models.MapRecord, open []*batch, mapNumber int, cp models.CompositionPatch) bool {
	if record != nil && record.Composition(cp.Side, cp.PlayerID) == nil && record.HasPlayer(cp.PlayerID) {
		return true
	}
	for _, b := range open {
		if side, ok := b.playerSide(mapNumber, cp.PlayerID); ok && side != cp.Side {
			return true
		}
	}
	return false
}

// playerKnown reports whether a stat-only update addresses an existing entry, or one
// being added with a hero in the actor's open batch.
func (v patchValidator) playerKnown(record *models.MapRecord, pending *batch, mapNumber int, cp models.CompositionPatch) bool {
	if record != nil && record.Composition(cp.Side, cp.PlayerID) != nil {
		return true
	}
	return pending.addsPlayer(mapNumber, cp.Side, cp.PlayerID)
}

// effectiveStatus is the status a new mutation transitions from: the one pending in
// the actor's open batch, or the current one.
func effectiveStatus(match *models.Match, pending *batch) models.MatchStatus {
	if status, ok := pending.pendingStatus(); ok {
		return status
	}
	return match.Status
}

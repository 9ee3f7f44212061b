// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"errors"
	"fmt"
	"slices"

	validator "github.com/AccelByte/justice-input-validation-go"
)

// Patch is a partial update of a match. Nil fields are left untouched.
type Patch struct {
	Status          *MatchStatus `json:"status,omitempty"`
	Team1Score      *int         `json:"team1_score,omitempty"`
	Team2Score      *int         `json:"team2_score,omitempty"`
	CurrentMapIndex *int         `json:"current_map_index,omitempty"`
	// WinnerOverride sets the authoritative series winner; an empty string clears it.
	WinnerOverride *string `json:"winner_override,omitempty"`
	// ClearSeriesScoreOverride hands series scores back to derivation.
	ClearSeriesScoreOverride bool       `json:"clear_series_score_override,omitempty"`
	Maps                     []MapPatch `json:"maps,omitempty"`
}

// MapPatch is a partial update of one map record.
type MapPatch struct {
	MapNumber    int        `json:"map_number"`
	MapName      *string    `json:"map_name,omitempty"`
	GameMode     *string    `json:"game_mode,omitempty"`
	Team1Score   *int       `json:"team1_score,omitempty"`
	Team2Score   *int       `json:"team2_score,omitempty"`
	Status       *MapStatus `json:"status,omitempty"`
	WinThreshold *int       `json:"win_threshold,omitempty"`
	// WinnerOverride sets the map winner explicitly; an empty string clears it.
	WinnerOverride *string            `json:"winner_override,omitempty"`
	Compositions   []CompositionPatch `json:"compositions,omitempty"`
}

// CompositionPatch is a partial update of one player's entry on a map.
// A player that is not yet on the map must be added with a hero.
type CompositionPatch struct {
	PlayerID      string  `json:"player_id"                valid:"required,stringlength(1|64)"`
	Side          Side    `json:"side"                     valid:"required,in(team1|team2)"`
	PlayerName    *string `json:"player_name,omitempty"`
	Hero          *string `json:"hero,omitempty"`
	Eliminations  *int    `json:"eliminations,omitempty"`
	Deaths        *int    `json:"deaths,omitempty"`
	Assists       *int    `json:"assists,omitempty"`
	Damage        *int    `json:"damage,omitempty"`
	Healing       *int    `json:"healing,omitempty"`
	DamageBlocked *int    `json:"damage_blocked,omitempty"`
}

// IsEmpty reports whether the patch carries no field at all.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.Team1Score == nil && p.Team2Score == nil && p.CurrentMapIndex == nil &&
		p.WinnerOverride == nil && !p.ClearSeriesScoreOverride && len(p.Maps) == 0
}

func (c CompositionPatch) Validate() error {
	if _, err := validator.ValidateStruct(c); err != nil {
		return err
	}
	return nil
}

// CreateMatchRequest registers a new series. Map records 1..Format are created
// up front; Maps optionally seeds their names, modes and win thresholds.
type CreateMatchRequest struct {
	ID      string    `json:"id"       valid:"stringlength(1|64)"`
	Team1ID string    `json:"team1_id" valid:"required,stringlength(1|64)"`
	Team2ID string    `json:"team2_id" valid:"required,stringlength(1|64)"`
	Format  int       `json:"format"   valid:"range(1|5)"`
	Maps    []MapSeed `json:"maps"`
}

type MapSeed struct {
	MapName      string `json:"map_name"`
	GameMode     string `json:"game_mode"`
	WinThreshold int    `json:"win_threshold" valid:"range(0|1000)"`
}

func (r CreateMatchRequest) Validate() error {
	if _, err := validator.ValidateStruct(r); err != nil {
		return err
	}

	if !slices.Contains(AvailableFormats, r.Format) {
		return fmt.Errorf("format should be one of %v", AvailableFormats)
	}

	if r.Team1ID == r.Team2ID {
		return errors.New("a team cannot play against itself")
	}

	if len(r.Maps) > r.Format {
		return fmt.Errorf("best of %d has at most %d maps", r.Format, r.Format)
	}

	for _, seed := range r.Maps {
		if seed.WinThreshold < 0 {
			return errors.New("map win threshold cannot be negative")
		}
	}

	return nil
}

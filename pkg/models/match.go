// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"time"

	"github.com/mitchellh/copystructure"
	"github.com/sirupsen/logrus"
)

// MatchStatus is the lifecycle state of a series.
type MatchStatus string

const (
	StatusUpcoming  MatchStatus = "upcoming"
	StatusLive      MatchStatus = "live"
	StatusPaused    MatchStatus = "paused"
	StatusCompleted MatchStatus = "completed"
	// StatusCancelled is a recognized value that no mutation can transition into or out of.
	StatusCancelled MatchStatus = "cancelled"
)

var AvailableMatchStatuses = []MatchStatus{StatusUpcoming, StatusLive, StatusPaused, StatusCompleted, StatusCancelled}

// MapStatus is the state of a single map within a series.
type MapStatus string

const (
	MapStatusUpcoming  MapStatus = "upcoming"
	MapStatusOngoing   MapStatus = "ongoing"
	MapStatusCompleted MapStatus = "completed"
	MapStatusForfeit   MapStatus = "forfeit"
)

var AvailableMapStatuses = []MapStatus{MapStatusUpcoming, MapStatusOngoing, MapStatusCompleted, MapStatusForfeit}

// Side identifies which team a composition entry belongs to.
type Side string

const (
	SideTeam1 Side = "team1"
	SideTeam2 Side = "team2"
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SideTeam2 {
		return SideTeam1
	}
	return SideTeam2
}

// AvailableFormats are the supported best-of-N series lengths.
var AvailableFormats = []int{1, 3, 5}

// Match is the authoritative state of one series.
type Match struct {
	ID              string      `json:"id"`
	Status          MatchStatus `json:"status"`
	Team1ID         string      `json:"team1_id"`
	Team2ID         string      `json:"team2_id"`
	Format          int         `json:"format"`
	Team1Score      int         `json:"team1_score"`
	Team2Score      int         `json:"team2_score"`
	CurrentMapIndex int         `json:"current_map_index"`
	WinnerID        *string     `json:"winner_id"`
	Decided         bool        `json:"decided"`
	StartedAt       *time.Time  `json:"started_at"`
	EndedAt         *time.Time  `json:"ended_at"`
	Version         int64       `json:"version"`
	UpdatedAt       time.Time   `json:"updated_at"`
	UpdatedBy       string      `json:"updated_by,omitempty"`
	Maps            []MapRecord `json:"maps"`

	// SeriesScoreExplicit is set once an operator writes series scores directly;
	// derivation then leaves Team1Score/Team2Score alone.
	SeriesScoreExplicit bool `json:"series_score_explicit"`
	// WinnerOverride, when set, is authoritative over the derived winner.
	WinnerOverride *string `json:"winner_override,omitempty"`
}

// MapRecord is one game of the series.
type MapRecord struct {
	MapNumber      int                `json:"map_number"`
	MapName        string             `json:"map_name"`
	GameMode       string             `json:"game_mode"`
	Team1Score     int                `json:"team1_score"`
	Team2Score     int                `json:"team2_score"`
	Status         MapStatus          `json:"status"`
	WinThreshold   int                `json:"win_threshold,omitempty"`
	Winner         *string            `json:"winner"`
	WinnerOverride *string            `json:"winner_override,omitempty"`
	Compositions   []CompositionEntry `json:"compositions"`
}

// CompositionEntry is one player's hero pick and stat line on a map.
type CompositionEntry struct {
	PlayerID      string `json:"player_id"`
	PlayerName    string `json:"player_name"`
	Side          Side   `json:"side"`
	Hero          string `json:"hero"`
	Eliminations  int    `json:"eliminations"`
	Deaths        int    `json:"deaths"`
	Assists       int    `json:"assists"`
	Damage        int    `json:"damage"`
	Healing       int    `json:"healing"`
	DamageBlocked int    `json:"damage_blocked"`
}

// Copy returns a deep copy of the match.
func (m Match) Copy() Match {
	copied, err := copystructure.Copy(m)
	if err != nil {
		logrus.Warn("failed to copy Match struct:", err)
	}
	copyMatch, _ := copied.(Match)
	return copyMatch
}

// Map returns the map record for number, or nil.
func (m *Match) Map(number int) *MapRecord {
	for i := range m.Maps {
		if m.Maps[i].MapNumber == number {
			return &m.Maps[i]
		}
	}
	return nil
}

// IsTeam reports whether teamID is one of the two teams in the series.
func (m Match) IsTeam(teamID string) bool {
	return teamID != "" && (teamID == m.Team1ID || teamID == m.Team2ID)
}

// WinsNeeded is the number of map wins that decides the series.
func (m Match) WinsNeeded() int {
	return m.Format/2 + 1
}

// Composition returns the entry for player on side, or nil.
func (mr *MapRecord) Composition(side Side, playerID string) *CompositionEntry {
	for i := range mr.Compositions {
		if mr.Compositions[i].Side == side && mr.Compositions[i].PlayerID == playerID {
			return &mr.Compositions[i]
		}
	}
	return nil
}

// HasPlayer reports whether playerID has an entry on either side.
func (mr *MapRecord) HasPlayer(playerID string) bool {
	for _, c := range mr.Compositions {
		if c.PlayerID == playerID {
			return true
		}
	}
	return false
}

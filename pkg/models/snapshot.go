// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import "time"

// Snapshot is an immutable, versioned projection of a match handed to readers.
// Holders must treat it as read-only; Copy it before modifying.
type Snapshot struct {
	MatchID     string    `json:"match_id"`
	Version     int64     `json:"version"`
	PublishedAt time.Time `json:"published_at"`
	// BatchID identifies the coalesced batch that produced this version.
	BatchID string `json:"batch_id"`
	Match   Match  `json:"match"`
}

// NewSnapshot freezes a deep copy of match.
func NewSnapshot(match Match, batchID string, publishedAt time.Time) *Snapshot {
	return &Snapshot{
		MatchID:     match.ID,
		Version:     match.Version,
		PublishedAt: publishedAt,
		BatchID:     batchID,
		Match:       match.Copy(),
	}
}

func (s *Snapshot) Copy() Snapshot {
	return Snapshot{
		MatchID:     s.MatchID,
		Version:     s.Version,
		PublishedAt: s.PublishedAt,
		BatchID:     s.BatchID,
		Match:       s.Match.Copy(),
	}
}

// BatchRecord summarizes an applied batch in the per-match history.
type BatchRecord struct {
	BatchID     string    `json:"batch_id"`
	ActorID     string    `json:"actor_id"`
	Version     int64     `json:"version"`
	Mutations   int       `json:"mutations"`
	Fields      int       `json:"fields"`
	Discarded   int       `json:"discarded"`
	CloseReason string    `json:"close_reason"`
	OpenedAt    time.Time `json:"opened_at"`
	AppliedAt   time.Time `json:"applied_at"`
}

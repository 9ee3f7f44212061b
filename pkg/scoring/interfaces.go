// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package scoring is the live scoring engine: it validates operator mutations,
// coalesces them per operator, resolves conflicting writes between operators,
// applies batches atomically, derives winners and publishes versioned snapshots.
package scoring

import (
	"context"

	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/models"
)

/*
Repository is the durable store behind the engine. The engine keeps the authoritative
in-memory copy of every loaded match and calls Save exactly once per applied batch,
before the new version becomes visible to readers. Save must be atomic: either the
whole match is stored at match.Version or nothing is.

Load returns a *models.NotFoundError (errors.Is models.ErrNotFound) for an unknown id
and Create returns models.ErrMatchExists for a duplicate one.
*/
type Repository interface {
	// Create stores a brand new match at its initial version.
	Create(ctx context.Context, match *models.Match) error

	// Load returns the latest stored state of a match.
	Load(ctx context.Context, matchID string) (*models.Match, error)

	// Save stores match, which must be exactly one version ahead of the stored copy.
	Save(ctx context.Context, match *models.Match) error
}

// HeroCatalog answers whether a hero name may be picked in a composition entry.
type HeroCatalog interface {
	IsValidHero(hero string) bool
}

// SnapshotListener is notified after every published snapshot, in version order per match.
// OnSnapshot runs while the match is locked, so implementations must hand off and return.
type SnapshotListener interface {
	OnSnapshot(scope *envelope.Scope, snapshot *models.Snapshot)
}

// SnapshotListenerFunc adapts a plain function to SnapshotListener.
type SnapshotListenerFunc func(scope *envelope.Scope, snapshot *models.Snapshot)

func (f SnapshotListenerFunc) OnSnapshot(scope *envelope.Scope, snapshot *models.Snapshot) {
	f(scope, snapshot)
}

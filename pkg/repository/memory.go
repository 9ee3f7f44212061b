// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package repository holds the durable match stores behind the scoring engine.
package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/bacx00/mrvl-livescore/pkg/models"
)

// Memory keeps deep copies of matches in process memory.
type Memory struct {
	mu       sync.RWMutex
	matches  map[string]models.Match
	failSave error
}

func NewMemory() *Memory {
	return &Memory{matches: map[string]models.Match{}}
}

func (m *Memory) Create(ctx context.Context, match *models.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.matches[match.ID]; ok {
		return fmt.Errorf("%w: %s", models.ErrMatchExists, match.ID)
	}
	m.matches[match.ID] = match.Copy()

	return nil
}

func (m *Memory) Load(ctx context.Context, matchID string) (*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	match, ok := m.matches[matchID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "match", Ref: matchID}
	}
	copied := match.Copy()

	return &copied, nil
}

func (m *Memory) Save(ctx context.Context, match *models.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSave != nil {
		return m.failSave
	}

	stored, ok := m.matches[match.ID]
	if !ok {
		return &models.NotFoundError{Kind: "match", Ref: match.ID}
	}
	if stored.Version != match.Version-1 {
		return fmt.Errorf("%w: stored version %d, saving %d", ErrVersionMismatch, stored.Version, match.Version)
	}
	m.matches[match.ID] = match.Copy()

	return nil
}

// FailSaves makes every following Save return err, or store again when err is nil.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSave = err
}

// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrConflictDiscarded = errors.New("conflicting write discarded")
	ErrInternalStore     = errors.New("match store failure")
	ErrMatchExists       = errors.New("match already exists")
)

var errorCodeMap = map[error]int{
	ErrValidation:        520101,
	ErrInvalidTransition: 520102,
	ErrNotFound:          520103,
	ErrConflictDiscarded: 520104,
	ErrInternalStore:     520105,
	ErrMatchExists:       520106,
}

// ErrorCode returns the code registered for the sentinel err wraps.
// It returns 20002 (generic validation) if no sentinel matches.
func ErrorCode(err error) int {
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return 20002
}

// FieldProblem is one rejected field of a patch.
type FieldProblem struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every problem found in a rejected patch.
type ValidationError struct {
	Problems []FieldProblem `json:"problems"`
}

func (e *ValidationError) Add(field string, format string, args ...interface{}) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ErrOrNil returns nil when no problem was recorded.
func (e *ValidationError) ErrOrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// TransitionError is returned for a status change outside the lifecycle graph.
type TransitionError struct {
	From MatchStatus
	To   MatchStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NotFoundError names the missing match, map or player.
type NotFoundError struct {
	Kind string
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s %s", e.Kind, e.Ref, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Conflict describes one field value that lost to a later write by another actor.
type Conflict struct {
	Field          string      `json:"field"`
	DiscardedValue interface{} `json:"discarded_value"`
	DiscardedBy    string      `json:"discarded_actor"`
	WinningValue   interface{} `json:"winning_value"`
	WinningActor   string      `json:"winning_actor"`
}

// ConflictDiscardedError is informational: the mutation was applied except for the
// listed fields, and the returned snapshot is valid.
type ConflictDiscardedError struct {
	Conflicts []Conflict
}

func (e *ConflictDiscardedError) Error() string {
	fields := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		fields = append(fields, c.Field)
	}
	return fmt.Sprintf("%s: %s", ErrConflictDiscarded, strings.Join(fields, ", "))
}

func (e *ConflictDiscardedError) Unwrap() error {
	return ErrConflictDiscarded
}

// StoreError wraps a persistence failure. The match state is unchanged and the
// identical patch can be retried.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInternalStore, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrInternalStore, e.Err}
}

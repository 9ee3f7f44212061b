// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package constants

import "time"

const (
	// DefaultCoalesceWindow is the reference quiet period of an operator's coalescing window.
	DefaultCoalesceWindow = 500 * time.Millisecond
	DefaultMaxBatchAge    = 2 * time.Second
	DefaultHistorySize    = 32
)

const (
	ActorIDHeader = "X-Actor-ID"

	LogFieldMatchID = "matchID"
	LogFieldActorID = "actorID"
	LogFieldVersion = "version"
	LogFieldBatchID = "batchID"
)

const (
	// batch outcome labels.
	OutcomeApplied           = "applied"
	OutcomeInvalidTransition = "invalid_transition"
	OutcomeStoreError        = "store_error"

	// snapshot read labels.
	ReadModified    = "modified"
	ReadNotModified = "not_modified"

	// batch close reasons.
	CloseReasonWindow    = "window"
	CloseReasonMaxAge    = "max_age"
	CloseReasonMaxSize   = "max_size"
	CloseReasonImmediate = "immediate"
	CloseReasonFlush     = "flush"
)

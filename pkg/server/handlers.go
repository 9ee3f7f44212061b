// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/models"
)

const versionHeader = "X-Match-Version"

type mutationResponse struct {
	Snapshot  *models.Snapshot  `json:"snapshot"`
	Conflicts []models.Conflict `json:"conflicts,omitempty"`
}

func (s *Server) createMatch(w http.ResponseWriter, r *http.Request) {
	scope := requestScope(r)

	var request models.CreateMatchRequest
	if err := readJSON(w, r, &request); err != nil {
		badRequestResponse(scope, w, err)
		return
	}

	snapshot, err := s.engine.CreateMatch(scope, request)
	if err != nil {
		engineErrorResponse(scope, w, err)
		return
	}

	headers := snapshotHeaders(snapshot)
	headers.Set("Location", "/api/matches/"+snapshot.MatchID+"/snapshot")
	if err = writeJSON(w, http.StatusCreated, snapshot, headers); err != nil {
		scope.Log.WithError(err).Error("unable to write response")
	}
}

func (s *Server) applyMutation(w http.ResponseWriter, r *http.Request) {
	scope := requestScope(r)
	matchID := matchIDParam(r)

	actorID := strings.TrimSpace(r.Header.Get(constants.ActorIDHeader))
	if actorID == "" {
		badRequestResponse(scope, w, fmt.Errorf("missing %s header", constants.ActorIDHeader))
		return
	}
	scope.Log = scope.Log.WithField(constants.LogFieldActorID, actorID)

	var patch models.Patch
	if err := readJSON(w, r, &patch); err != nil {
		badRequestResponse(scope, w, err)
		return
	}

	snapshot, err := s.engine.ApplyMutation(scope, matchID, actorID, patch)
	response := mutationResponse{Snapshot: snapshot}

	var conflictErr *models.ConflictDiscardedError
	switch {
	case err == nil:
	case errors.As(err, &conflictErr) && snapshot != nil:
		response.Conflicts = conflictErr.Conflicts
	default:
		engineErrorResponse(scope, w, err)
		return
	}

	if err = writeJSON(w, http.StatusOK, response, snapshotHeaders(snapshot)); err != nil {
		scope.Log.WithError(err).Error("unable to write response")
	}
}

// getSnapshot answers 304 when the caller already holds the current version. With
// wait it long-polls for the next version before answering 304.
func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	scope := requestScope(r)
	matchID := matchIDParam(r)

	since, err := queryInt(r, "since")
	if err != nil {
		badRequestResponse(scope, w, err)
		return
	}
	waitSeconds, err := queryInt(r, "wait")
	if err != nil {
		badRequestResponse(scope, w, err)
		return
	}

	snapshot, modified, err := s.engine.GetSnapshot(scope, matchID, since)
	if err != nil {
		engineErrorResponse(scope, w, err)
		return
	}

	if !modified && waitSeconds > 0 {
		wait := time.Duration(waitSeconds) * time.Second
		if limit := s.cfg.LongPollMax(); limit > 0 && wait > limit {
			wait = limit
		}

		ctx, cancel := context.WithTimeout(scope.Ctx, wait)
		snapshot, err = s.engine.Watch(scope.WithContext(ctx), matchID, since)
		cancel()

		switch {
		case err == nil:
			modified = true
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		default:
			engineErrorResponse(scope, w, err)
			return
		}
	}

	if !modified {
		w.Header().Set(versionHeader, strconv.FormatInt(since, 10))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if err = writeJSON(w, http.StatusOK, snapshot, snapshotHeaders(snapshot)); err != nil {
		scope.Log.WithError(err).Error("unable to write response")
	}
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	scope := requestScope(r)
	matchID := matchIDParam(r)

	records, err := s.engine.History(scope, matchID)
	if err != nil {
		engineErrorResponse(scope, w, err)
		return
	}

	if err = writeJSON(w, http.StatusOK, jsonResponse{"match_id": matchID, "batches": records}, nil); err != nil {
		scope.Log.WithError(err).Error("unable to write response")
	}
}

func snapshotHeaders(snapshot *models.Snapshot) http.Header {
	headers := http.Header{}
	if snapshot != nil {
		headers.Set(versionHeader, strconv.FormatInt(snapshot.Version, 10))
	}
	return headers
}

// queryInt reads a non-negative integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}

	return value, nil
}

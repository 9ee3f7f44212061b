// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// streamSnapshots pushes the current snapshot and then every newer one. A slow
// client skips intermediate versions and always receives the latest.
func (s *Server) streamSnapshots(w http.ResponseWriter, r *http.Request) {
	scope := requestScope(r)
	matchID := matchIDParam(r)

	current, _, err := s.engine.GetSnapshot(scope, matchID, 0)
	if err != nil {
		engineErrorResponse(scope, w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		scope.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(scope.Ctx)
	defer cancel()

	go readPump(conn, cancel)

	updates := make(chan *models.Snapshot, 1)
	go s.watchLoop(scope.WithContext(ctx), matchID, current.Version, updates)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err = writeSnapshot(conn, current); err != nil {
		return
	}

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err = writeSnapshot(conn, snapshot); err != nil {
				scope.Log.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) watchLoop(scope *envelope.Scope, matchID string, since int64, updates chan<- *models.Snapshot) {
	defer close(updates)

	for {
		snapshot, err := s.engine.Watch(scope, matchID, since)
		if err != nil {
			if scope.Ctx.Err() == nil {
				scope.Log.WithError(err).WithField(constants.LogFieldMatchID, matchID).Warn("snapshot stream stopped")
			}
			return
		}

		select {
		case updates <- snapshot:
		case <-scope.Ctx.Done():
			return
		}
		since = snapshot.Version
	}
}

// readPump discards client messages and cancels the stream once the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snapshot *models.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snapshot)
}

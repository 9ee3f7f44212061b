// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package server exposes the scoring engine over HTTP and websockets.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bacx00/mrvl-livescore/pkg/config"
	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/models"
)

// Engine is the part of scoring.Engine the handlers use.
type Engine interface {
	CreateMatch(scope *envelope.Scope, request models.CreateMatchRequest) (*models.Snapshot, error)
	ApplyMutation(scope *envelope.Scope, matchID string, actorID string, patch models.Patch) (*models.Snapshot, error)
	GetSnapshot(scope *envelope.Scope, matchID string, sinceVersion int64) (*models.Snapshot, bool, error)
	Watch(scope *envelope.Scope, matchID string, sinceVersion int64) (*models.Snapshot, error)
	History(scope *envelope.Scope, matchID string) ([]models.BatchRecord, error)
}

type Server struct {
	engine   Engine
	cfg      *config.Config
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

func New(cfg *config.Config, engine Engine, gatherer prometheus.Gatherer) *Server {
	return &Server{
		engine:   engine,
		cfg:      cfg,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigin,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", constants.ActorIDHeader, "X-B3-TraceId", "X-B3-SpanId", "X-B3-Sampled", "b3"},
		ExposedHeaders: []string{versionHeader},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	router.Route("/api/matches", func(r chi.Router) {
		r.Use(scopeMiddleware)
		r.Post("/", s.createMatch)
		r.Route("/{matchID}", func(r chi.Router) {
			r.Post("/mutations", s.applyMutation)
			r.Get("/snapshot", s.getSnapshot)
			r.Get("/history", s.getHistory)
			r.Get("/ws", s.streamSnapshots)
		})
	})

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts the listener down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, scope *envelope.Scope) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.ServerPort),
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.cfg.LongPollMax() + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		scope.Log.Infof("http server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	scope.Log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

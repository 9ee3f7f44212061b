// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/bacx00/mrvl-livescore/pkg/envelope"
)

type scopeContextKey struct{}

// scopeMiddleware opens a request scope under the caller's trace, if it sent one.
func scopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		scope := envelope.ChildScopeFromRemoteScope(ctx, r.Method+" "+r.URL.Path)
		defer scope.Finish()

		scope.Log = scope.Log.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"requestID": chiMiddleware.GetReqID(r.Context()),
		})

		next.ServeHTTP(w, r.WithContext(context.WithValue(scope.Ctx, scopeContextKey{}, scope)))
	})
}

func requestScope(r *http.Request) *envelope.Scope {
	if scope, ok := r.Context().Value(scopeContextKey{}).(*envelope.Scope); ok {
		return scope.WithContext(r.Context())
	}
	return envelope.NewRootScope(r.Context(), "server.request", "")
}

func matchIDParam(r *http.Request) string {
	return chi.URLParam(r, "matchID")
}

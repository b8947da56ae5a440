// internal/server/middleware.go
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/julioonmartinez/lulinks-api/internal/authz"
	errordefs "github.com/julioonmartinez/lulinks-api/internal/errors"
	"github.com/julioonmartinez/lulinks-api/internal/event"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
)

// requestInfo is filled in by later middleware so the access log can report it
type requestInfo struct {
	uid string
}

const requestInfoKey contextKey = "requestInfo"

// correlationID propagates X-Correlation-Id, generating one when absent
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Correlation-Id", id)
		ctx := context.WithValue(r.Context(), correlationIDKey, id)
		ctx = event.WithCorrelationID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog records request metrics and writes one log line per request
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		statusLabel := strconv.Itoa(status)
		s.metrics.HTTPRequestTotal.WithLabelValues(r.Method, route, statusLabel).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, statusLabel).Observe(duration.Seconds())

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", duration),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("correlation_id", correlationIDFrom(r.Context())),
		}
		if info.uid != "" {
			attrs = append(attrs, slog.String("uid", info.uid))
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.LogAttrs(r.Context(), level, "request completed", attrs...)
	})
}

// authenticate resolves the bearer token when one is sent. Requests without
// an Authorization header continue anonymously; a header that fails
// verification is rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := s.guard.ResolvePrincipal(r.Context(), header)
		if err != nil {
			slog.Debug("credential rejected", "error", err, "correlation_id", correlationIDFrom(r.Context()))
			writeError(w, r, err, "")
			return
		}
		if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
			info.uid = p.UID
		}
		next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(r.Context(), p)))
	})
}

// refFromRequest builds the address a route operates on from its URL params
func refFromRequest(r *http.Request, kind model.Kind) model.Ref {
	id := chi.URLParam(r, "id")
	profileID := chi.URLParam(r, "profileId")
	if kind == model.KindProfile && id == "" {
		id = profileID
		profileID = ""
	}
	if !kind.Nested() {
		profileID = ""
	}
	return model.Ref{Kind: kind, ParentID: profileID, ID: id}
}

// authorize enforces the policy entry for (kind, op). A resource loaded while
// checking ownership is handed to the handler through the request context.
func (s *Server) authorize(kind model.Kind, op authz.Op) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ref := refFromRequest(r, kind)
			loaded, err := s.guard.Authorize(r.Context(), authz.PrincipalFrom(r.Context()), kind, op, ref)
			if err != nil {
				notFound := string(kind) + " not found"
				// ParentOwner checks load the profile, so a miss is the profile's
				if req, _ := authz.RequirementFor(kind, op); req == authz.ParentOwner && errors.Is(err, storage.ErrNotFound) {
					notFound = "profile not found"
				}
				writeError(w, r, err, notFound)
				return
			}
			ctx := r.Context()
			if loaded != nil {
				ctx = authz.WithResource(ctx, loaded)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// methodNotAllowed writes the standard envelope for 405 responses
func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorDef(w, errordefs.New(errordefs.METHOD_NOT_ALLOWED, "method not allowed", correlationIDFrom(r.Context())))
}

// notFound writes the standard envelope for unknown routes
func notFound(w http.ResponseWriter, r *http.Request) {
	writeErrorDef(w, errordefs.New(errordefs.NOT_FOUND, "route not found", correlationIDFrom(r.Context())))
}

// rateLimited writes the standard envelope when httprate rejects a request
func rateLimited(w http.ResponseWriter, r *http.Request) {
	writeErrorDef(w, errordefs.New(errordefs.RATE_LIMITED, "too many requests", correlationIDFrom(r.Context())))
}

// internal/server/server.go
// Package server implements the HTTP routing and handlers of the lulinks API.
// Every route is wrapped in correlation id, access log, authentication and,
// where the access policy requires it, an authorization middleware.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/julioonmartinez/lulinks-api/internal/authz"
	"github.com/julioonmartinez/lulinks-api/internal/event"
	"github.com/julioonmartinez/lulinks-api/internal/metrics"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/julioonmartinez/lulinks-api/internal/schema"
	"github.com/julioonmartinez/lulinks-api/internal/statistics"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the router needs.
type Deps struct {
	Store      storage.Store          // Document store
	Statistics *statistics.Aggregator // Statistics ingestion; built over Store when nil and Store implements StatisticsStore
	Verifier   authz.Verifier         // ID token verifier
	Publisher  event.Publisher        // Change events; Noop when nil
	Validator  *schema.Validator      // Document schemas; compiled when nil
}

// Options tune the HTTP surface.
type Options struct {
	AllowedOrigins []string         // CORS allow list
	StatsRateLimit int              // Statistics POSTs per IP per minute, 0 disables
	MaxBodyBytes   int64            // Request body cap, 0 means 1 MiB
	Now            func() time.Time // Clock for createdAt/updatedAt
}

// Server holds handler dependencies.
type Server struct {
	store     storage.Store
	stats     *statistics.Aggregator
	guard     *authz.Guard
	publisher event.Publisher
	validator *schema.Validator
	metrics   *metrics.Metrics
	opts      Options
}

// NewRouter builds the chi router with every API route registered.
func NewRouter(d Deps, o Options) (http.Handler, error) {
	if d.Store == nil || d.Verifier == nil {
		return nil, fmt.Errorf("store and verifier are required")
	}
	if d.Publisher == nil {
		d.Publisher = event.Noop{}
	}
	if d.Validator == nil {
		v, err := schema.NewValidator()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
		}
		d.Validator = v
	}
	if d.Statistics == nil {
		ss, ok := d.Store.(storage.StatisticsStore)
		if !ok {
			return nil, fmt.Errorf("no statistics store configured")
		}
		d.Statistics = statistics.NewAggregator(ss, d.Publisher)
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}

	s := &Server{
		store:     d.Store,
		stats:     d.Statistics,
		guard:     authz.NewGuard(d.Verifier, d.Store),
		publisher: d.Publisher,
		validator: d.Validator,
		metrics:   metrics.NewMetrics(),
		opts:      o,
	}
	return s.routes(), nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(correlationID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization", "X-Correlation-Id"},
		ExposedHeaders:   []string{"X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.MethodNotAllowed(methodNotAllowed)
	r.NotFound(notFound)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		// Profiles
		r.With(s.authorize(model.KindProfile, authz.OpCreate)).Post("/createProfile", s.handleCreate(model.KindProfile))
		r.With(s.authorize(model.KindProfile, authz.OpRead)).Get("/getProfile/{id}", s.handleGet(model.KindProfile))
		r.With(s.authorize(model.KindProfile, authz.OpList)).Get("/getProfiles", s.handleList(model.KindProfile, nil))
		r.With(s.authorize(model.KindProfile, authz.OpUpdate)).Put("/updateProfile/{id}", s.handleUpdate(model.KindProfile))
		r.With(s.authorize(model.KindProfile, authz.OpDelete)).Delete("/deleteProfile/{id}", s.handleDelete(model.KindProfile))
		r.With(s.authorize(model.KindProfile, authz.OpList)).Get("/getProfilesByUuid", s.handleProfilesByUUID)
		r.With(s.authorize(model.KindProfile, authz.OpRead)).Get("/profiles/by-username", s.handleProfileByUsername)

		r.Route("/profile/{profileId}", func(r chi.Router) {
			r.With(s.authorize(model.KindProfile, authz.OpUpdate)).Post("/upgrade", s.handleUpgradeProfile)

			// Links
			r.With(s.authorize(model.KindLink, authz.OpCreate)).Post("/link", s.handleCreate(model.KindLink))
			r.With(s.authorize(model.KindLink, authz.OpList)).Get("/links", s.handleList(model.KindLink, nil))
			r.With(s.authorize(model.KindLink, authz.OpRead)).Get("/link/{id}", s.handleGet(model.KindLink))
			r.With(s.authorize(model.KindLink, authz.OpUpdate)).Put("/link/{id}", s.handleUpdate(model.KindLink))
			r.With(s.authorize(model.KindLink, authz.OpDelete)).Delete("/link/{id}", s.handleDelete(model.KindLink))

			// Styles
			r.With(s.authorize(model.KindStyle, authz.OpCreate)).Post("/styles", s.handleCreate(model.KindStyle))
			r.With(s.authorize(model.KindStyle, authz.OpList)).Get("/styles", s.handleList(model.KindStyle, nil))
			r.With(s.authorize(model.KindStyle, authz.OpRead)).Get("/styles/{id}", s.handleGet(model.KindStyle))
			r.With(s.authorize(model.KindStyle, authz.OpUpdate)).Put("/styles/{id}", s.handleUpdate(model.KindStyle))
			r.With(s.authorize(model.KindStyle, authz.OpDelete)).Delete("/styles/{id}", s.handleDelete(model.KindStyle))

			// Widgets
			r.With(s.authorize(model.KindWidget, authz.OpCreate)).Post("/widgets", s.handleCreate(model.KindWidget))
			r.With(s.authorize(model.KindWidget, authz.OpList)).Get("/widgets", s.handleList(model.KindWidget, nil))
			r.With(s.authorize(model.KindWidget, authz.OpList)).Get("/widgets/type", s.handleList(model.KindWidget, widgetTypeFilter))
			r.With(s.authorize(model.KindWidget, authz.OpList)).Get("/widgets/active", s.handleList(model.KindWidget, activeFilter))
			r.With(s.authorize(model.KindWidget, authz.OpRead)).Get("/widgets/{id}", s.handleGet(model.KindWidget))
			r.With(s.authorize(model.KindWidget, authz.OpUpdate)).Put("/widgets/{id}", s.handleUpdate(model.KindWidget))
			r.With(s.authorize(model.KindWidget, authz.OpDelete)).Delete("/widgets/{id}", s.handleDelete(model.KindWidget))
		})

		// Statistics
		r.Group(func(r chi.Router) {
			if s.opts.StatsRateLimit > 0 {
				r.Use(httprate.Limit(s.opts.StatsRateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(rateLimited),
				))
			}
			r.With(s.authorize(authz.KindStatistics, authz.OpCreate)).Post("/statistics", s.handleRecordStatistics)
		})
		r.With(s.authorize(authz.KindStatistics, authz.OpRead)).Get("/statistics", s.handleGetStatistics)

		// Users
		r.With(s.authorize(model.KindUser, authz.OpCreate)).Post("/users", s.handleCreateUser)
		r.With(s.authorize(model.KindUser, authz.OpList)).Get("/users", s.handleList(model.KindUser, nil))
		r.With(s.authorize(model.KindUser, authz.OpRead)).Get("/users/{id}", s.handleGet(model.KindUser))
		r.With(s.authorize(model.KindUser, authz.OpUpdate)).Put("/users/{id}", s.handleUpdate(model.KindUser))
		r.With(s.authorize(model.KindUser, authz.OpDelete)).Delete("/users/{id}", s.handleDelete(model.KindUser))
	})

	return r
}

// handleHealthz handles liveness checks
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports whether the document store answers
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// observeStorage records a storage operation's outcome and latency
func (s *Server) observeStorage(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.StorageOperationTotal.WithLabelValues(op, status).Inc()
	s.metrics.StorageOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// publishChange emits a resource event; failures are logged, never returned
func (s *Server) publishChange(ctx context.Context, action event.Action, r model.Resource) {
	eventType := fmt.Sprintf("%s.%s", r.Kind, action)
	if err := s.publisher.PublishResourceChanged(ctx, action, r); err != nil {
		s.metrics.EventPublishTotal.WithLabelValues(eventType, "error").Inc()
		slog.Warn("failed to publish resource event", "type", eventType, "id", r.ID, "error", err)
		return
	}
	s.metrics.EventPublishTotal.WithLabelValues(eventType, "success").Inc()
}

// internal/server/statistics.go
package server

import (
	"encoding/json"
	"net/http"

	errordefs "github.com/julioonmartinez/lulinks-api/internal/errors"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/julioonmartinez/lulinks-api/internal/statistics"
	"github.com/julioonmartinez/lulinks-api/internal/telemetry"
	"github.com/julioonmartinez/lulinks-api/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// handleRecordStatistics handles POST /api/statistics
func (s *Server) handleRecordStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "recordStatistics")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	defer r.Body.Close()

	var req validation.StatisticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		writeErrorDef(w, errordefs.New(errordefs.VALIDATION_ERROR, "invalid JSON", correlationIDFrom(ctx)))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		writeError(w, r, err, "")
		return
	}
	span.SetAttributes(
		attribute.String("profileId", req.ProfileID),
		attribute.String("widgetId", req.WidgetID),
		attribute.String("type", req.Type),
	)

	rec, err := s.stats.RecordEvent(ctx, statistics.Event{
		ProfileID: req.ProfileID,
		WidgetID:  req.WidgetID,
		Kind:      model.EventKind(req.Type),
		VisitorID: req.UniqueID,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, rec)
}

// handleGetStatistics handles GET /api/statistics?profileId=&widgetId=
func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "getStatistics")
	defer span.End()

	q := validation.StatisticsQuery{
		ProfileID: r.URL.Query().Get("profileId"),
		WidgetID:  r.URL.Query().Get("widgetId"),
	}
	if err := validation.ValidateStruct(&q); err != nil {
		writeError(w, r, err, "")
		return
	}

	rec, err := s.stats.GetStatistics(ctx, q.ProfileID, q.WidgetID)
	if err != nil {
		writeError(w, r, err, "statistics not found")
		return
	}
	writeSuccess(w, http.StatusOK, rec)
}

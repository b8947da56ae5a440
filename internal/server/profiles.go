// internal/server/profiles.go
package server

import (
	"net/http"
	"strings"

	errordefs "github.com/julioonmartinez/lulinks-api/internal/errors"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/julioonmartinez/lulinks-api/internal/telemetry"
	"github.com/julioonmartinez/lulinks-api/internal/validation"
	"go.opentelemetry.io/otel/attribute"
)

// handleProfilesByUUID handles GET /api/getProfilesByUuid?uuid=
func (s *Server) handleProfilesByUUID(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "getProfilesByUuid")
	defer span.End()
	r = r.WithContext(ctx)

	q := validation.UUIDQuery{UUID: strings.TrimSpace(r.URL.Query().Get("uuid"))}
	if err := validation.ValidateStruct(&q); err != nil {
		writeError(w, r, err, "")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	s.list(w, r, model.ListQuery{Kind: model.KindProfile, Field: "uuid", Value: q.UUID, Limit: limit})
}

// handleProfileByUsername handles GET /api/profiles/by-username?username=
// Matching uses the same normalization as the uniqueness check.
func (s *Server) handleProfileByUsername(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "getProfileByUsername")
	defer span.End()

	q := validation.UsernameQuery{Username: strings.TrimSpace(r.URL.Query().Get("username"))}
	if err := validation.ValidateStruct(&q); err != nil {
		writeError(w, r, err, "")
		return
	}
	span.SetAttributes(attribute.String("userName", q.Username))

	items, err := s.store.ListResources(ctx, model.ListQuery{
		Kind:      model.KindProfile,
		UniqueKey: model.NormalizeUserName(q.Username),
		Limit:     1,
	})
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if len(items) == 0 {
		writeErrorDef(w, errordefs.New(errordefs.NOT_FOUND, "no profile found with the given username", correlationIDFrom(ctx)))
		return
	}
	writeSuccess(w, http.StatusOK, items[0])
}

// handleUpgradeProfile handles POST /api/profile/{profileId}/upgrade.
// Only the owner may upgrade; the flag and timestamp are set server side.
func (s *Server) handleUpgradeProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "upgradeProfile")
	defer span.End()
	r = r.WithContext(ctx)

	current, err := s.target(r, model.KindProfile)
	if err != nil {
		writeError(w, r, err, notFoundMessage(model.KindProfile))
		return
	}
	span.SetAttributes(attribute.String("id", current.ID))

	now := s.opts.Now()
	updated := current.Clone()
	updated.Data["isPremium"] = true
	if _, already := updated.Data["premiumSince"]; !already {
		updated.Data["premiumSince"] = now
	}
	updated.UpdatedAt = now
	s.update(w, r, updated)
}

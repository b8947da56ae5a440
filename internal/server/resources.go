// internal/server/resources.go
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julioonmartinez/lulinks-api/internal/authz"
	errordefs "github.com/julioonmartinez/lulinks-api/internal/errors"
	"github.com/julioonmartinez/lulinks-api/internal/event"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
	"github.com/julioonmartinez/lulinks-api/internal/telemetry"
	"github.com/julioonmartinez/lulinks-api/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// listFilter narrows a list route to documents whose field equals a value
type listFilter func(r *http.Request) (field string, value interface{}, err error)

func widgetTypeFilter(r *http.Request) (string, interface{}, error) {
	q := validation.WidgetTypeQuery{Type: strings.TrimSpace(r.URL.Query().Get("type"))}
	if err := validation.ValidateStruct(&q); err != nil {
		return "", nil, err
	}
	return "type", q.Type, nil
}

func activeFilter(r *http.Request) (string, interface{}, error) {
	return "active", true, nil
}

// decodeBody reads a JSON object body; an empty body is an empty object
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]interface{}, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	defer r.Body.Close()

	body := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errordefs.New(errordefs.VALIDATION_ERROR, "request body too large", "")
		}
		return nil, errordefs.New(errordefs.VALIDATION_ERROR, "request body must be a JSON object", "")
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	return body, nil
}

// parseLimit reads the optional limit query parameter
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field: "limit", Tag: "integer", Message: "limit must be an integer",
		}}}
	}
	q := validation.ListQuery{Limit: n}
	if err := validation.ValidateStruct(&q); err != nil {
		return 0, err
	}
	return n, nil
}

// uniqueKeyFor returns the normalized unique value of a document body
func uniqueKeyFor(kind model.Kind, data map[string]interface{}) string {
	if kind != model.KindProfile {
		return ""
	}
	name, _ := data["userName"].(string)
	return model.NormalizeUserName(name)
}

func conflictMessage(kind model.Kind) string {
	switch kind {
	case model.KindProfile:
		return "userName already exists"
	case model.KindUser:
		return "user already exists"
	}
	return "resource already exists"
}

func notFoundMessage(kind model.Kind) string {
	return string(kind) + " not found"
}

// handleCreate creates a document. createdBy is always the caller.
func (s *Server) handleCreate(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "createResource")
		defer span.End()
		span.SetAttributes(attribute.String("kind", string(kind)))

		principal := authz.PrincipalFrom(ctx)
		if err := s.guard.AuthorizeCreate(principal); err != nil {
			writeError(w, r, err, "")
			return
		}

		ref := refFromRequest(r, kind)
		// Authenticated-only nested kinds still need an existing parent
		if kind.Nested() && authz.ResourceFrom(ctx) == nil {
			if _, err := s.store.GetResource(ctx, ref.Parent()); err != nil {
				writeError(w, r, err, "profile not found")
				return
			}
		}

		body, err := s.decodeBody(w, r)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		data := model.StripReserved(body)
		if kind == model.KindProfile {
			if _, ok := data["status"]; !ok {
				data["status"] = true
			}
		}
		if err := s.validator.Validate(kind, data); err != nil {
			span.SetStatus(codes.Error, "schema validation failed")
			writeError(w, r, err, "")
			return
		}

		now := s.opts.Now()
		res := model.Resource{
			Kind:      kind,
			ID:        storage.NewID(),
			ParentID:  ref.ParentID,
			CreatedBy: principal.UID,
			CreatedAt: now,
			UpdatedAt: now,
			Data:      data,
			UniqueKey: uniqueKeyFor(kind, data),
		}
		s.create(w, r, res)
	}
}

// handleCreateUser creates the caller's own user document, keyed by uid
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "createUser")
	defer span.End()

	principal := authz.PrincipalFrom(ctx)
	if err := s.guard.AuthorizeCreate(principal); err != nil {
		writeError(w, r, err, "")
		return
	}

	body, err := s.decodeBody(w, r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	data := model.StripReserved(body)
	delete(data, "uid")
	if err := s.validator.Validate(model.KindUser, data); err != nil {
		writeError(w, r, err, "")
		return
	}

	now := s.opts.Now()
	s.create(w, r, model.Resource{
		Kind:      model.KindUser,
		ID:        principal.UID,
		CreatedBy: principal.UID,
		CreatedAt: now,
		UpdatedAt: now,
		Data:      data,
	})
}

// create stores res and answers 201
func (s *Server) create(w http.ResponseWriter, r *http.Request, res model.Resource) {
	ctx := r.Context()
	start := time.Now()
	err := s.store.CreateResource(ctx, res)
	s.observeStorage("create_"+string(res.Kind), start, err)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			writeErrorDef(w, errordefs.New(errordefs.CONFLICT, conflictMessage(res.Kind), correlationIDFrom(ctx)))
			return
		}
		writeError(w, r, err, "")
		return
	}

	s.publishChange(ctx, event.ActionCreated, res)
	writeSuccess(w, http.StatusCreated, res)
}

// handleGet returns a single document
func (s *Server) handleGet(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "getResource")
		defer span.End()

		ref := refFromRequest(r, kind)
		span.SetAttributes(attribute.String("kind", string(kind)), attribute.String("id", ref.ID))

		start := time.Now()
		res, err := s.store.GetResource(ctx, ref)
		s.observeStorage("get_"+string(kind), start, notFoundIsSuccess(err))
		if err != nil {
			writeError(w, r, err, notFoundMessage(kind))
			return
		}
		writeSuccess(w, http.StatusOK, res)
	}
}

// handleList returns the documents of a collection, optionally filtered
func (s *Server) handleList(kind model.Kind, filter listFilter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "listResources")
		defer span.End()
		r = r.WithContext(ctx)
		span.SetAttributes(attribute.String("kind", string(kind)))

		limit, err := parseLimit(r)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		q := model.ListQuery{Kind: kind, ParentID: refFromRequest(r, kind).ParentID, Limit: limit}
		if filter != nil {
			if q.Field, q.Value, err = filter(r); err != nil {
				writeError(w, r, err, "")
				return
			}
		}
		s.list(w, r, q)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, q model.ListQuery) {
	start := time.Now()
	items, err := s.store.ListResources(r.Context(), q)
	s.observeStorage("list_"+string(q.Kind), start, err)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, items)
}

// target returns the document a mutation applies to. Owner checks already
// loaded it; ParentOwner and Self checks did not.
func (s *Server) target(r *http.Request, kind model.Kind) (*model.Resource, error) {
	if res := authz.ResourceFrom(r.Context()); res != nil && res.Kind == kind {
		return res, nil
	}
	return s.store.GetResource(r.Context(), refFromRequest(r, kind))
}

// handleUpdate merges the request body into an existing document
func (s *Server) handleUpdate(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "updateResource")
		defer span.End()
		r = r.WithContext(ctx)

		current, err := s.target(r, kind)
		if err != nil {
			writeError(w, r, err, notFoundMessage(kind))
			return
		}
		span.SetAttributes(attribute.String("kind", string(kind)), attribute.String("id", current.ID))

		body, err := s.decodeBody(w, r)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		patch := model.StripReserved(body)
		if kind == model.KindUser {
			delete(patch, "uid")
		}

		updated := current.Clone()
		for k, v := range patch {
			updated.Data[k] = v
		}
		if err := s.validator.Validate(kind, updated.Data); err != nil {
			writeError(w, r, err, "")
			return
		}
		updated.UniqueKey = uniqueKeyFor(kind, updated.Data)
		updated.UpdatedAt = s.opts.Now()
		s.update(w, r, updated)
	}
}

// update stores res, which keeps its createdBy, and answers 200
func (s *Server) update(w http.ResponseWriter, r *http.Request, res model.Resource) {
	ctx := r.Context()
	start := time.Now()
	err := s.store.UpdateResource(ctx, res)
	s.observeStorage("update_"+string(res.Kind), start, err)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			writeErrorDef(w, errordefs.New(errordefs.CONFLICT, conflictMessage(res.Kind), correlationIDFrom(ctx)))
			return
		}
		writeError(w, r, err, notFoundMessage(res.Kind))
		return
	}

	s.publishChange(ctx, event.ActionUpdated, res)
	writeSuccess(w, http.StatusOK, res)
}

// handleDelete removes a document
func (s *Server) handleDelete(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "deleteResource")
		defer span.End()

		current, err := s.target(r, kind)
		if err != nil {
			writeError(w, r, err, notFoundMessage(kind))
			return
		}
		span.SetAttributes(attribute.String("kind", string(kind)), attribute.String("id", current.ID))

		start := time.Now()
		err = s.store.DeleteResource(ctx, current.Ref())
		s.observeStorage("delete_"+string(kind), start, notFoundIsSuccess(err))
		if err != nil {
			writeError(w, r, err, notFoundMessage(kind))
			return
		}

		current.UpdatedAt = s.opts.Now()
		s.publishChange(ctx, event.ActionDeleted, *current)
		writeSuccess(w, http.StatusOK, map[string]interface{}{"id": current.ID, "deleted": true})
	}
}

// notFoundIsSuccess keeps lookups of absent documents out of the error rate
func notFoundIsSuccess(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

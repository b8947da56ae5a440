// internal/server/response.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julioonmartinez/lulinks-api/internal/authz"
	errordefs "github.com/julioonmartinez/lulinks-api/internal/errors"
	"github.com/julioonmartinez/lulinks-api/internal/schema"
	"github.com/julioonmartinez/lulinks-api/internal/statistics"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
	"github.com/julioonmartinez/lulinks-api/internal/validation"
)

type contextKey string

const correlationIDKey contextKey = "correlationId"

// correlationIDFrom returns the request correlation id set by the middleware
func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// writeSuccess writes a successful response
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

// writeErrorDef writes an error envelope
func writeErrorDef(w http.ResponseWriter, e *errordefs.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": e})
}

// writeError maps err onto the error taxonomy and writes it. notFound is the
// message used when err is storage.ErrNotFound.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	writeErrorDef(w, toErrorDef(err, notFound, correlationIDFrom(r.Context())))
}

func toErrorDef(err error, notFound, correlationID string) *errordefs.Error {
	var (
		def    *errordefs.Error
		reqErr *validation.RequestValidationError
		docErr *schema.ValidationError
	)
	switch {
	case errors.As(err, &def):
		def.CorrelationID = correlationID
		return def
	case errors.As(err, &reqErr):
		return errordefs.NewWithDetails(errordefs.VALIDATION_ERROR, reqErr.Error(), correlationID, reqErr.Details())
	case errors.As(err, &docErr):
		return errordefs.NewWithDetails(errordefs.VALIDATION_ERROR, "document failed validation", correlationID, docErr.Errors)
	case errors.Is(err, statistics.ErrMissingProfile), errors.Is(err, statistics.ErrInvalidKind):
		return errordefs.New(errordefs.VALIDATION_ERROR, err.Error(), correlationID)
	case errors.Is(err, authz.ErrMissingCredential), errors.Is(err, authz.ErrUnauthenticated):
		return errordefs.New(errordefs.UNAUTHORIZED, "authentication required", correlationID)
	case errors.Is(err, authz.ErrInvalidCredential):
		return errordefs.New(errordefs.UNAUTHORIZED, "invalid or expired token", correlationID)
	case errors.Is(err, authz.ErrForbidden):
		return errordefs.New(errordefs.FORBIDDEN, "not allowed to access this resource", correlationID)
	case errors.Is(err, storage.ErrNotFound):
		if notFound == "" {
			notFound = "resource not found"
		}
		return errordefs.New(errordefs.NOT_FOUND, notFound, correlationID)
	case errors.Is(err, storage.ErrConflict):
		return errordefs.New(errordefs.CONFLICT, "resource already exists", correlationID)
	}
	return errordefs.Internal("internal server error", correlationID, err)
}

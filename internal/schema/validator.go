// internal/schema/validator.go
// Package schema validates client supplied document bodies against per-kind JSON schemas.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/julioonmartinez/lulinks-api/internal/metrics"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError lists every schema violation found in a document.
type ValidationError struct {
	Kind   model.Kind
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s document: %s", e.Kind, strings.Join(e.Errors, "; "))
}

// Schemas are open: unknown fields are kept, only known fields are typed.
var schemas = map[model.Kind]string{
	model.KindProfile: `{
		"type": "object",
		"required": ["userName"],
		"properties": {
			"userName": {"type": "string", "minLength": 1, "maxLength": 64, "pattern": "\\S"},
			"uuid": {"type": "string"},
			"name": {"type": "string", "maxLength": 128},
			"description": {"type": "string", "maxLength": 1024},
			"status": {"type": "boolean"},
			"isPremium": {"type": "boolean"}
		}
	}`,
	model.KindLink: `{
		"type": "object",
		"required": ["url", "name"],
		"properties": {
			"url": {"type": "string", "minLength": 1, "maxLength": 2048},
			"name": {"type": "string", "minLength": 1, "maxLength": 256},
			"icon": {"type": "string"},
			"urlImage": {"type": "string"},
			"active": {"type": "boolean"}
		}
	}`,
	model.KindStyle: `{
		"type": "object",
		"properties": {
			"name": {"type": "string", "maxLength": 128}
		}
	}`,
	model.KindWidget: `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"type": "string", "minLength": 1, "maxLength": 64},
			"active": {"type": "boolean"}
		}
	}`,
	model.KindUser: `{
		"type": "object",
		"properties": {
			"email": {"type": "string", "maxLength": 320},
			"displayName": {"type": "string", "maxLength": 128}
		}
	}`,
}

// Validator validates documents against compiled schemas.
type Validator struct {
	schemas map[model.Kind]*gojsonschema.Schema
	metrics *metrics.Metrics
}

// NewValidator compiles the schema of every kind.
func NewValidator() (*Validator, error) {
	v := &Validator{
		schemas: make(map[model.Kind]*gojsonschema.Schema, len(schemas)),
		metrics: metrics.NewMetrics(),
	}
	for kind, src := range schemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", kind, err)
		}
		v.schemas[kind] = s
	}
	return v, nil
}

// Validate checks a full document body. On update the merged document is
// validated, so required fields stay required.
func (v *Validator) Validate(kind model.Kind, body map[string]interface{}) error {
	err := v.validate(kind, body)
	status := "valid"
	if err != nil {
		status = "invalid"
	}
	v.metrics.SchemaValidationTotal.WithLabelValues(string(kind), status).Inc()
	return err
}

func (v *Validator) validate(kind model.Kind, body map[string]interface{}) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("no schema for kind %s", kind)
	}
	if body == nil {
		body = map[string]interface{}{}
	}

	doc, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		verr := &ValidationError{Kind: kind}
		for _, desc := range result.Errors() {
			verr.Errors = append(verr.Errors, desc.String())
		}
		return verr
	}
	return nil
}

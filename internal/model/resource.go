// internal/model/resource.go
// Package model defines the data structures used throughout the lulinks API.
// Resources are schemaless documents addressed by kind, parent profile and id.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind names a resource collection.
type Kind string

const (
	KindProfile Kind = "profile" // profiles/{id}
	KindLink    Kind = "link"    // profiles/{profileId}/links/{id}
	KindStyle   Kind = "style"   // profiles/{profileId}/styles/{id}
	KindWidget  Kind = "widget"  // profiles/{profileId}/widgets/{id}
	KindUser    Kind = "user"    // users/{uid}
)

// Nested reports whether resources of this kind live under a profile.
func (k Kind) Nested() bool {
	switch k {
	case KindLink, KindStyle, KindWidget:
		return true
	}
	return false
}

// ChildKinds lists the subcollections removed together with a profile.
var ChildKinds = []Kind{KindLink, KindStyle, KindWidget}

// Ref addresses a single resource.
type Ref struct {
	Kind     Kind   // Resource collection
	ParentID string // Owning profile id, empty for top-level kinds
	ID       string // Document id
}

// Parent returns the reference of the profile that owns a nested resource.
func (r Ref) Parent() Ref {
	return Ref{Kind: KindProfile, ID: r.ParentID}
}

// reservedFields are managed by the service and never taken from a request body.
var reservedFields = []string{"id", "profileId", "createdBy", "createdAt", "updatedAt"}

// Resource is a stored document.
// CreatedBy is stamped once at creation and is the sole basis for ownership.
type Resource struct {
	Kind      Kind                   `json:"-"`
	ID        string                 `json:"id"`
	ParentID  string                 `json:"profileId,omitempty"`
	CreatedBy string                 `json:"createdBy,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	Data      map[string]interface{} `json:"-"`

	// UniqueKey is a normalized value that must be unique per kind (profile userName).
	UniqueKey string `json:"-"`
}

// Ref returns the address of the resource.
func (r Resource) Ref() Ref {
	return Ref{Kind: r.Kind, ParentID: r.ParentID, ID: r.ID}
}

// MarshalJSON flattens Data next to the managed fields, the shape clients expect.
func (r Resource) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Data)+5)
	for k, v := range r.Data {
		out[k] = v
	}
	out["id"] = r.ID
	if r.ParentID != "" {
		out["profileId"] = r.ParentID
	}
	if r.CreatedBy != "" {
		out["createdBy"] = r.CreatedBy
	}
	out["createdAt"] = r.CreatedAt
	out["updatedAt"] = r.UpdatedAt
	return json.Marshal(out)
}

// Clone returns a copy whose Data map can be modified independently.
func (r Resource) Clone() Resource {
	c := r
	c.Data = CopyFields(r.Data)
	return c
}

// CopyFields makes a shallow copy of a document body.
func CopyFields(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// StripReserved removes service-managed keys from a client supplied body.
func StripReserved(in map[string]interface{}) map[string]interface{} {
	out := CopyFields(in)
	for _, k := range reservedFields {
		delete(out, k)
	}
	return out
}

// NormalizeUserName trims and lowercases a profile handle for uniqueness checks.
func NormalizeUserName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ListQuery filters a collection.
type ListQuery struct {
	Kind      Kind
	ParentID  string      // Required for nested kinds
	Field     string      // Optional equality filter on a body field
	Value     interface{} // Value compared against Field
	UniqueKey string      // Optional exact match on the normalized unique key
	Limit     int         // 0 means no limit
}

// Matches reports whether a resource satisfies the query filters.
// Kind and parent are matched by the caller.
func (q ListQuery) Matches(r Resource) bool {
	if q.UniqueKey != "" && r.UniqueKey != q.UniqueKey {
		return false
	}
	if q.Field != "" {
		v, ok := r.Data[q.Field]
		if !ok || !equalJSON(v, q.Value) {
			return false
		}
	}
	return true
}

// equalJSON compares scalars the way a JSON document store would
func equalJSON(a, b interface{}) bool {
	switch av := a.(type) {
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case int:
			return av == float64(bv)
		}
		return false
	case int:
		return equalJSON(float64(av), b)
	}
	return a == b
}

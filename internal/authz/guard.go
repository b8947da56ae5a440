// Package authz resolves request principals and enforces the resource access policy.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/julioonmartinez/lulinks-api/internal/metrics"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
)

// Authorization errors. Missing and invalid credentials map to 401, the rest of
// the denials to 403.
var (
	ErrMissingCredential = errors.New("missing bearer credential")
	ErrInvalidCredential = errors.New("invalid bearer credential")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrForbidden         = errors.New("forbidden")
)

// Verifier checks an ID token and returns the subject uid.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Principal is the verified caller of a request. The zero value is anonymous.
type Principal struct {
	UID string
}

// Authenticated reports whether the principal carries a verified uid.
func (p Principal) Authenticated() bool {
	return p.UID != ""
}

// Guard decides whether a principal may perform an operation.
type Guard struct {
	verifier Verifier
	store    storage.Store
	metrics  *metrics.Metrics
}

// NewGuard creates a guard that verifies tokens with v and loads resources from store.
func NewGuard(v Verifier, store storage.Store) *Guard {
	return &Guard{verifier: v, store: store, metrics: metrics.NewMetrics()}
}

// ResolvePrincipal extracts and verifies the bearer token in an Authorization header.
// A failed verification is an error, never an anonymous principal.
func (g *Guard) ResolvePrincipal(ctx context.Context, header string) (Principal, error) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return Principal{}, ErrMissingCredential
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return Principal{}, ErrMissingCredential
	}

	uid, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if uid == "" {
		return Principal{}, ErrInvalidCredential
	}
	return Principal{UID: uid}, nil
}

// AuthorizeCreate requires an authenticated principal. The caller stamps
// createdBy from the same principal.
func (g *Guard) AuthorizeCreate(p Principal) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// AuthorizeMutate loads the target fresh from the store and checks ownership.
// Existence is resolved before ownership, so a missing resource is
// storage.ErrNotFound regardless of who asks. A resource without createdBy
// is owned by nobody.
func (g *Guard) AuthorizeMutate(ctx context.Context, p Principal, ref model.Ref) (*model.Resource, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	r, err := g.store.GetResource(ctx, ref)
	if err != nil {
		return nil, err
	}
	if r.CreatedBy == "" || r.CreatedBy != p.UID {
		return nil, ErrForbidden
	}
	return r, nil
}

// AuthorizeSelf requires the principal to be the addressed user.
func (g *Guard) AuthorizeSelf(p Principal, userID string) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if p.UID != userID {
		return ErrForbidden
	}
	return nil
}

// Authorize applies the policy entry for (kind, op) to ref.
// For Owner the loaded target is returned, for ParentOwner the loaded parent profile.
func (g *Guard) Authorize(ctx context.Context, p Principal, kind model.Kind, op Op, ref model.Ref) (*model.Resource, error) {
	req, ok := RequirementFor(kind, op)
	if !ok {
		g.record(kind, op, ErrForbidden)
		return nil, fmt.Errorf("%w: no policy for %s %s", ErrForbidden, op, kind)
	}

	var (
		r   *model.Resource
		err error
	)
	switch req {
	case Public:
	case Authenticated:
		err = g.AuthorizeCreate(p)
	case Owner:
		r, err = g.AuthorizeMutate(ctx, p, ref)
	case ParentOwner:
		r, err = g.AuthorizeMutate(ctx, p, ref.Parent())
	case Self:
		err = g.AuthorizeSelf(p, ref.ID)
	}
	g.record(kind, op, err)
	return r, err
}

func (g *Guard) record(kind model.Kind, op Op, err error) {
	decision := "allow"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthenticated):
		decision = "deny_unauthenticated"
	case errors.Is(err, ErrForbidden):
		decision = "deny_forbidden"
	case errors.Is(err, storage.ErrNotFound):
		decision = "not_found"
	default:
		decision = "error"
	}
	g.metrics.AuthzDecisionTotal.WithLabelValues(string(kind), string(op), decision).Inc()
}

type principalKey struct{}

// WithPrincipal stores the request principal in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the request principal, anonymous when none was stored.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

type resourceKey struct{}

// WithResource stores the resource loaded during authorization.
func WithResource(ctx context.Context, r *model.Resource) context.Context {
	return context.WithValue(ctx, resourceKey{}, r)
}

// ResourceFrom returns the resource loaded during authorization, or nil.
func ResourceFrom(ctx context.Context) *model.Resource {
	r, _ := ctx.Value(resourceKey{}).(*model.Resource)
	return r
}

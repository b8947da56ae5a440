package authz

import (
	"github.com/julioonmartinez/lulinks-api/internal/model"
)

// KindStatistics is the policy key for statistics counters, which are not documents.
const KindStatistics model.Kind = "statistics"

// Op is an operation on a resource collection.
type Op string

const (
	OpCreate Op = "create"
	OpRead   Op = "read"
	OpList   Op = "list"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Requirement is what a request must satisfy for an operation.
type Requirement int

const (
	Public        Requirement = iota // No credential needed
	Authenticated                    // Any verified principal
	Owner                            // Principal created the target resource
	ParentOwner                      // Principal created the parent profile
	Self                             // Principal is the target user
)

func (r Requirement) String() string {
	switch r {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case Owner:
		return "owner"
	case ParentOwner:
		return "parent_owner"
	case Self:
		return "self"
	}
	return "unknown"
}

type policyKey struct {
	kind model.Kind
	op   Op
}

// policy is the complete access table. A missing entry denies.
var policy = map[policyKey]Requirement{
	{model.KindProfile, OpCreate}: Authenticated,
	{model.KindProfile, OpRead}:   Public,
	{model.KindProfile, OpList}:   Public,
	{model.KindProfile, OpUpdate}: Owner,
	{model.KindProfile, OpDelete}: Owner,

	{model.KindStyle, OpCreate}: Authenticated,
	{model.KindStyle, OpRead}:   Public,
	{model.KindStyle, OpList}:   Public,
	{model.KindStyle, OpUpdate}: Owner,
	{model.KindStyle, OpDelete}: Owner,

	{model.KindWidget, OpCreate}: Authenticated,
	{model.KindWidget, OpRead}:   Public,
	{model.KindWidget, OpList}:   Public,
	{model.KindWidget, OpUpdate}: Owner,
	{model.KindWidget, OpDelete}: Owner,

	{model.KindLink, OpCreate}: ParentOwner,
	{model.KindLink, OpRead}:   Public,
	{model.KindLink, OpList}:   Public,
	{model.KindLink, OpUpdate}: ParentOwner,
	{model.KindLink, OpDelete}: ParentOwner,

	{model.KindUser, OpCreate}: Authenticated,
	{model.KindUser, OpRead}:   Self,
	{model.KindUser, OpList}:   Authenticated,
	{model.KindUser, OpUpdate}: Self,
	{model.KindUser, OpDelete}: Self,

	{KindStatistics, OpCreate}: Public,
	{KindStatistics, OpRead}:   Public,
}

// RequirementFor looks up the policy entry for an operation.
func RequirementFor(kind model.Kind, op Op) (Requirement, bool) {
	r, ok := policy[policyKey{kind, op}]
	return r, ok
}

package authz

import (
	"context"
	"strings"
)

// RolePolicy is the offline demo decision point, selected explicitly via
// fga.mode=roles. It answers from two rules: callers with a manager role
// see everything, everyone else only sees documents whose id marks them
// public. It exists so local development works without an FGA store; it is
// never a silent fallback inside FGAChecker, and must not be deployed
// where real policy is required.
type RolePolicy struct{}

func NewRolePolicy() *RolePolicy {
	return &RolePolicy{}
}

// Check implements Checker. It never fails: the policy is local and total.
func (p *RolePolicy) Check(_ context.Context, identity Identity, relation, objectType, objectID string) (bool, error) {
	if relation != RelationView || objectType != ObjectTypeDocument {
		return false, nil
	}
	if strings.Contains(strings.ToLower(identity.Role), "manager") ||
		strings.Contains(strings.ToLower(identity.Subject), "manager") {
		return true, nil
	}
	return strings.Contains(strings.ToLower(objectID), "public"), nil
}

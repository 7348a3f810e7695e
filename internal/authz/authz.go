// Package authz defines the authorization decision point consumed by the
// gate, plus its two implementations: the OpenFGA Check API client and an
// explicitly-selected offline role policy for local demos.
package authz

import "context"

// Relation and object type used for document visibility checks.
const (
	RelationView       = "view"
	ObjectTypeDocument = "document"
)

// Identity is the resolved caller. Subject is the stable principal id
// (JWT sub or dev-header value); Role is an optional coarse role claim.
type Identity struct {
	Subject string
	Role    string
}

// UserRef renders the identity in the user format the FGA store expects.
func (id Identity) UserRef() string {
	return "user:" + id.Subject
}

// Checker answers a single yes/no authorization question. Implementations
// must return an error (never a permissive default) when the decision
// point cannot be reached: the gate fails closed on any error.
type Checker interface {
	Check(ctx context.Context, identity Identity, relation, objectType, objectID string) (bool, error)
}

// Decision records one per-candidate outcome. Decisions are produced once
// per request and never cached across requests.
type Decision struct {
	DocumentID string
	Allowed    bool
	// Err is set when the check itself failed; such candidates are
	// always treated as blocked.
	Err error
}

// Package authn resolves caller identities from HTTP requests. It rejects
// missing or invalid credentials before the query pipeline ever runs.
package authn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/answergate/answergate/internal/authz"
	agerrors "github.com/answergate/answergate/pkg/errors"
)

// Authenticator resolves the caller identity from a request. A failure is
// always ErrUnauthenticated; implementations never fall through to an
// anonymous identity.
type Authenticator interface {
	Resolve(r *http.Request) (authz.Identity, error)
}

type identityKey struct{}

// WithIdentity stores the resolved identity in the context.
func WithIdentity(ctx context.Context, identity authz.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (authz.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(authz.Identity)
	return identity, ok
}

// bearerToken extracts the Authorization bearer token, or "".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// Chain tries each authenticator in order and returns the first resolved
// identity. It fails only when every authenticator rejects the request;
// the returned error carries each rejection so operators can tell an
// expired token apart from absent credentials.
type Chain []Authenticator

func (c Chain) Resolve(r *http.Request) (authz.Identity, error) {
	var errs []error
	for _, a := range c {
		identity, err := a.Resolve(r)
		if err == nil {
			return identity, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return authz.Identity{}, fmt.Errorf("%w: no authenticators configured", agerrors.ErrUnauthenticated)
	}
	return authz.Identity{}, fmt.Errorf("%w: %v", agerrors.ErrUnauthenticated, errors.Join(errs...))
}

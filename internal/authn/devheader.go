package authn

import (
	"fmt"
	"net/http"

	"github.com/answergate/answergate/internal/authz"
	agerrors "github.com/answergate/answergate/pkg/errors"
)

// DevHeaderName carries the caller identity in development mode, e.g.
// "X-Dev-User: alice_manager" or "X-Dev-User: bob:employee".
const DevHeaderName = "X-Dev-User"

// DevHeader accepts an identity from a plain request header. It must only
// be wired when auth.allowDevAuth is explicitly enabled; it performs no
// verification whatsoever.
type DevHeader struct{}

// Resolve reads "subject" or "subject:role" from the dev header.
func (DevHeader) Resolve(r *http.Request) (authz.Identity, error) {
	value := r.Header.Get(DevHeaderName)
	if value == "" {
		return authz.Identity{}, fmt.Errorf("%w: missing %s header", agerrors.ErrUnauthenticated, DevHeaderName)
	}
	identity := authz.Identity{Subject: value}
	for i := 0; i < len(value); i++ {
		if value[i] == ':' {
			identity.Subject = value[:i]
			identity.Role = value[i+1:]
			break
		}
	}
	if identity.Subject == "" {
		return authz.Identity{}, fmt.Errorf("%w: empty subject in %s header", agerrors.ErrUnauthenticated, DevHeaderName)
	}
	return identity, nil
}

package authn

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/answergate/answergate/internal/authz"
	"github.com/answergate/answergate/pkg/config"
	agerrors "github.com/answergate/answergate/pkg/errors"
)

func TestDevHeaderResolve(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    authz.Identity
		wantErr bool
	}{
		{name: "subject only", header: "alice_manager", want: authz.Identity{Subject: "alice_manager"}},
		{name: "subject and role", header: "bob:employee", want: authz.Identity{Subject: "bob", Role: "employee"}},
		{name: "missing header", header: "", wantErr: true},
		{name: "empty subject", header: ":manager", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
			if tt.header != "" {
				r.Header.Set(DevHeaderName, tt.header)
			}
			got, err := DevHeader{}.Resolve(r)
			if tt.wantErr {
				if !errors.Is(err, agerrors.ErrUnauthenticated) {
					t.Fatalf("Resolve() error = %v, want ErrUnauthenticated", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type staticAuthenticator struct {
	identity authz.Identity
	err      error
}

func (s staticAuthenticator) Resolve(*http.Request) (authz.Identity, error) {
	return s.identity, s.err
}

func TestChainFirstSuccessWins(t *testing.T) {
	chain := Chain{
		staticAuthenticator{err: agerrors.ErrUnauthenticated},
		staticAuthenticator{identity: authz.Identity{Subject: "carol"}},
		staticAuthenticator{identity: authz.Identity{Subject: "never-reached"}},
	}
	identity, err := chain.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if identity.Subject != "carol" {
		t.Errorf("Subject = %q, want carol", identity.Subject)
	}
}

func TestChainAllReject(t *testing.T) {
	chain := Chain{
		staticAuthenticator{err: fmt.Errorf("%w: token is expired", agerrors.ErrUnauthenticated)},
		staticAuthenticator{err: fmt.Errorf("%w: missing dev header", agerrors.ErrUnauthenticated)},
	}
	_, err := chain.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(err, agerrors.ErrUnauthenticated) {
		t.Fatalf("Resolve() error = %v, want ErrUnauthenticated", err)
	}
	// Each authenticator's rejection survives in the message so the
	// middleware's debug log tells operators which credential failed how.
	if !strings.Contains(err.Error(), "token is expired") {
		t.Errorf("Resolve() error %q does not carry the JWT rejection detail", err)
	}
	if !strings.Contains(err.Error(), "missing dev header") {
		t.Errorf("Resolve() error %q does not carry the dev header rejection detail", err)
	}
}

func TestChainEmpty(t *testing.T) {
	_, err := Chain{}.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(err, agerrors.ErrUnauthenticated) {
		t.Fatalf("Resolve() error = %v, want ErrUnauthenticated", err)
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	want := authz.Identity{Subject: "dave", Role: "manager"}
	ctx := WithIdentity(r.Context(), want)
	got, ok := IdentityFromContext(ctx)
	if !ok || got != want {
		t.Errorf("IdentityFromContext() = %+v, %v; want %+v, true", got, ok, want)
	}
	if _, ok := IdentityFromContext(r.Context()); ok {
		t.Error("IdentityFromContext() on bare context = true, want false")
	}
}

// jwksServer serves a single-key JWKS for the given RSA key.
func jwksServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		doc := map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}}
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestJWTResolve(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	srv := jwksServer(t, "test-key", &key.PublicKey)
	issuer := srv.URL + "/"

	auth := NewJWT(config.AuthConfig{
		Issuer:   issuer,
		Audience: "https://answergate.example.com/api",
	})

	now := time.Now()
	valid := jwt.MapClaims{
		"iss":  issuer,
		"aud":  "https://answergate.example.com/api",
		"sub":  "auth0|alice",
		"role": "manager",
		"exp":  now.Add(time.Hour).Unix(),
		"iat":  now.Unix(),
	}

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, key, "test-key", valid))
		identity, err := auth.Resolve(r)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if identity.Subject != "auth0|alice" || identity.Role != "manager" {
			t.Errorf("identity = %+v, want subject auth0|alice role manager", identity)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
		if _, err := auth.Resolve(r); !errors.Is(err, agerrors.ErrUnauthenticated) {
			t.Fatalf("Resolve() error = %v, want ErrUnauthenticated", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		expired := jwt.MapClaims{}
		for k, v := range valid {
			expired[k] = v
		}
		expired["exp"] = now.Add(-time.Hour).Unix()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, key, "test-key", expired))
		if _, err := auth.Resolve(r); !errors.Is(err, agerrors.ErrUnauthenticated) {
			t.Fatalf("Resolve() error = %v, want ErrUnauthenticated", err)
		}
	})

	t.Run("wrong audience", func(t *testing.T) {
		wrong := jwt.MapClaims{}
		for k, v := range valid {
			wrong[k] = v
		}
		wrong["aud"] = "https://other.example.com"
		r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, key, "test-key", wrong))
		if _, err := auth.Resolve(r); !errors.Is(err, agerrors.ErrUnauthenticated) {
			t.Fatalf("Resolve() error = %v, want ErrUnauthenticated", err)
		}
	})

	t.Run("unknown signing key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generating key: %v", err)
		}
		r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, other, "other-key", valid))
		if _, err := auth.Resolve(r); !errors.Is(err, agerrors.ErrUnauthenticated) {
			t.Fatalf("Resolve() error = %v, want ErrUnauthenticated", err)
		}
	})
}

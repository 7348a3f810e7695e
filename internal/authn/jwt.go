package authn

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/answergate/answergate/internal/authz"
	"github.com/answergate/answergate/pkg/config"
	agerrors "github.com/answergate/answergate/pkg/errors"
	"github.com/answergate/answergate/pkg/resilience"
)

// JWTAuthenticator validates RS256 bearer tokens against the issuer's
// JWKS. Keys are cached and refreshed lazily when an unknown key id
// appears or the refresh interval elapses.
type JWTAuthenticator struct {
	issuer   string
	audience string
	jwksURL  string
	refresh  time.Duration
	client   *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewJWT creates an authenticator for the configured Auth0-style tenant.
// The issuer defaults to https://{domain}/ when not set explicitly.
func NewJWT(cfg config.AuthConfig) *JWTAuthenticator {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "https://" + cfg.Domain + "/"
	}
	refresh := cfg.JWKSRefresh
	if refresh <= 0 {
		refresh = time.Hour
	}
	return &JWTAuthenticator{
		issuer:   issuer,
		audience: cfg.Audience,
		jwksURL:  issuer + ".well-known/jwks.json",
		refresh:  refresh,
		client:   &http.Client{Timeout: 10 * time.Second},
		keys:     make(map[string]*rsa.PublicKey),
	}
}

// Resolve validates the bearer token and maps its claims to an Identity.
// Subject comes from the sub claim; an optional role claim is carried
// through for the offline role policy.
func (a *JWTAuthenticator) Resolve(r *http.Request) (authz.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return authz.Identity{}, fmt.Errorf("%w: missing bearer token", agerrors.ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, a.keyFunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return authz.Identity{}, fmt.Errorf("%w: %v", agerrors.ErrUnauthenticated, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return authz.Identity{}, fmt.Errorf("%w: token has no subject", agerrors.ErrUnauthenticated)
	}
	identity := authz.Identity{Subject: sub}
	if role, ok := claims["role"].(string); ok {
		identity.Role = role
	}
	return identity, nil
}

// keyFunc returns the RSA public key matching the token's kid header,
// fetching the JWKS when the key is unknown or the cache is stale.
func (a *JWTAuthenticator) keyFunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token header has no kid")
	}

	a.mu.RLock()
	key, ok := a.keys[kid]
	stale := time.Since(a.fetchedAt) > a.refresh
	a.mu.RUnlock()
	if ok && !stale {
		return key, nil
	}

	refreshCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := resilience.Retry(refreshCtx, "jwks-refresh", resilience.RetryConfig{}, a.fetchKeys); err != nil {
		// An unreachable JWKS endpoint means we cannot verify anyone:
		// reject rather than accept unverified tokens.
		return nil, fmt.Errorf("refreshing jwks: %w", err)
	}

	a.mu.RLock()
	key, ok = a.keys[kid]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (a *JWTAuthenticator) fetchKeys() error {
	resp, err := a.client.Get(a.jwksURL)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", a.jwksURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %d", a.jwksURL, resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k.N, k.E)
		if err != nil {
			return fmt.Errorf("parsing jwks key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("jwks at %s contains no usable RSA keys", a.jwksURL)
	}

	a.mu.Lock()
	a.keys = keys
	a.fetchedAt = time.Now()
	a.mu.Unlock()
	return nil
}

func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

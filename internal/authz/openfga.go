package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/answergate/answergate/pkg/config"
	agerrors "github.com/answergate/answergate/pkg/errors"
	"github.com/answergate/answergate/pkg/resilience"
)

// FGAChecker calls the OpenFGA / Auth0 FGA Check API. Every failure mode
// (network, non-2xx, open circuit, malformed body) surfaces as
// ErrAuthorizationUnavailable so callers cannot mistake an outage for a
// grant.
type FGAChecker struct {
	cfg     config.FGAConfig
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewFGAChecker creates a checker for the configured store. The HTTP
// client timeout backstops the per-check timeout applied by the gate.
func NewFGAChecker(cfg config.FGAConfig) *FGAChecker {
	timeout := cfg.CheckTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &FGAChecker{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewCircuitBreaker("fga-check", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "fga-checker"),
	}
}

type checkRequest struct {
	User                 string `json:"user"`
	Relation             string `json:"relation"`
	Object               string `json:"object"`
	AuthorizationModelID string `json:"authorization_model_id,omitempty"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// BreakerState reports the circuit breaker state for health reporting.
func (c *FGAChecker) BreakerState() resilience.State {
	return c.breaker.GetState()
}

// Check asks the FGA store whether identity holds relation on the object.
func (c *FGAChecker) Check(ctx context.Context, identity Identity, relation, objectType, objectID string) (bool, error) {
	var allowed bool
	err := c.breaker.Execute(func() error {
		var execErr error
		allowed, execErr = c.doCheck(ctx, identity, relation, objectType, objectID)
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", agerrors.ErrAuthorizationUnavailable, err)
	}
	return allowed, nil
}

func (c *FGAChecker) doCheck(ctx context.Context, identity Identity, relation, objectType, objectID string) (bool, error) {
	body := checkRequest{
		User:                 identity.UserRef(),
		Relation:             relation,
		Object:               objectType + ":" + objectID,
		AuthorizationModelID: c.cfg.ModelID,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("marshaling check request: %w", err)
	}

	url := fmt.Sprintf("%s/stores/%s/check", trimSlash(c.cfg.APIURL), c.cfg.StoreID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("building check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("calling fga check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("fga check rejected",
			"status", resp.StatusCode,
			"object", body.Object,
		)
		return false, fmt.Errorf("fga check returned status %d: %s", resp.StatusCode, snippet)
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("decoding check response: %w", err)
	}
	return decoded.Allowed, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

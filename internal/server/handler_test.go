package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/answergate/answergate/internal/authn"
	"github.com/answergate/answergate/internal/authz"
	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/gate"
	"github.com/answergate/answergate/internal/index"
	"github.com/answergate/answergate/internal/pipeline"
	"github.com/answergate/answergate/internal/ranker"
	"github.com/answergate/answergate/internal/ratelimit"
	agerrors "github.com/answergate/answergate/pkg/errors"
	"github.com/answergate/answergate/pkg/health"
)

// managerOnly allows every document for manager subjects and only ids
// containing "pub" for everyone else. failAll simulates a store outage.
type managerOnly struct {
	failAll bool
}

func (m managerOnly) Check(_ context.Context, identity authz.Identity, _, _, objectID string) (bool, error) {
	if m.failAll {
		return false, fmt.Errorf("%w: store down", agerrors.ErrAuthorizationUnavailable)
	}
	if strings.Contains(identity.Subject, "manager") {
		return true, nil
	}
	return strings.Contains(objectID, "pub"), nil
}

func testCollection() []corpus.Document {
	return []corpus.Document{
		{ID: "pub1", Title: "Holiday Schedule", Body: "office closed Dec 25 holidays"},
		{ID: "sec1", Title: "Salary Bands", Body: "manager salary bands 120k 180k"},
	}
}

func testServer(t *testing.T, checker authz.Checker, limiter *ratelimit.Limiter) *httptest.Server {
	t.Helper()
	collection := testCollection()
	ix, err := index.Build(collection)
	if err != nil {
		t.Fatalf("index.Build() error = %v", err)
	}
	p := pipeline.New(ranker.New(ix), gate.New(checker, time.Second, nil), 3)

	router := Router(RouterConfig{
		Handler:       New(p, collection),
		Authenticator: authn.Chain{authn.DevHeader{}},
		Limiter:       limiter,
		Health:        health.NewChecker(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postQuery(t *testing.T, srv *httptest.Server, user, question string) (*http.Response, map[string]any) {
	t.Helper()
	body := strings.NewReader(fmt.Sprintf(`{"question":%q}`, question))
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/query", body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if user != "" {
		req.Header.Set(authn.DevHeaderName, user)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("executing request: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, payload
}

func TestQueryRequiresAuthentication(t *testing.T) {
	srv := testServer(t, managerOnly{}, nil)
	resp, _ := postQuery(t, srv, "", "salary")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestQueryAllowed(t *testing.T) {
	srv := testServer(t, managerOnly{}, nil)
	resp, payload := postQuery(t, srv, "alice_manager", "salary bands")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	answer, _ := payload["answer"].(string)
	if !strings.Contains(answer, "Salary Bands") {
		t.Errorf("answer = %q, want salary document content", answer)
	}
	used, _ := payload["used_documents"].([]any)
	if len(used) != 1 || used[0] != "sec1" {
		t.Errorf("used_documents = %v, want [sec1]", used)
	}
}

func TestQueryAllBlocked(t *testing.T) {
	srv := testServer(t, managerOnly{}, nil)
	resp, payload := postQuery(t, srv, "bob", "salary bands")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	blocked, _ := payload["blocked_documents"].([]any)
	if len(blocked) != 1 || blocked[0] != "sec1" {
		t.Errorf("blocked_documents = %v, want [sec1]", blocked)
	}
	if body, _ := json.Marshal(payload); strings.Contains(string(body), "120k") {
		t.Error("blocked document text leaked into the error response")
	}
}

func TestQueryAuthorizationOutage(t *testing.T) {
	srv := testServer(t, managerOnly{failAll: true}, nil)
	resp, payload := postQuery(t, srv, "alice_manager", "salary")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if _, ok := payload["used_documents"]; ok {
		t.Error("outage response must not list any documents")
	}
}

func TestQueryEmptyQuestion(t *testing.T) {
	srv := testServer(t, managerOnly{}, nil)
	resp, _ := postQuery(t, srv, "alice_manager", "   ")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestQueryRateLimited(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	defer limiter.Close()
	srv := testServer(t, managerOnly{}, limiter)

	for i := 0; i < 2; i++ {
		resp, _ := postQuery(t, srv, "alice_manager", "holiday")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}
	resp, _ := postQuery(t, srv, "alice_manager", "holiday")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	// Other subjects keep their own bucket.
	resp, _ = postQuery(t, srv, "bob", "holiday")
	if resp.StatusCode == http.StatusTooManyRequests {
		t.Error("bob rate limited by alice's bucket")
	}
}

func TestDocumentsListsMetadataOnly(t *testing.T) {
	srv := testServer(t, managerOnly{}, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/documents", nil)
	req.Header.Set(authn.DevHeaderName, "bob")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("executing request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload struct {
		Documents []map[string]string `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(payload.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(payload.Documents))
	}
	for _, doc := range payload.Documents {
		if _, ok := doc["body"]; ok {
			t.Error("document body exposed in the listing")
		}
		if doc["id"] == "" || doc["title"] == "" {
			t.Errorf("document entry missing id/title: %v", doc)
		}
	}
}

func TestHealthLiveBypassesAuth(t *testing.T) {
	srv := testServer(t, managerOnly{}, nil)
	resp, err := srv.Client().Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatalf("GET /health/live: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// Command fgaseed uploads the authorization model to an OpenFGA store and
// writes the demo relationship tuples derived from the corpus: managers
// get view on every document, employees on public documents only.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/answergate/answergate/internal/authz"
	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/pkg/config"
	"github.com/answergate/answergate/pkg/logger"
	"github.com/answergate/answergate/pkg/resilience"
)

// authorizationModel is the minimal model the service needs: users hold
// the view relation directly on documents.
const authorizationModel = `{
  "schema_version": "1.1",
  "type_definitions": [
    {"type": "user"},
    {
      "type": "document",
      "relations": {"view": {"this": {}}},
      "metadata": {
        "relations": {
          "view": {"directly_related_user_types": [{"type": "user"}]}
        }
      }
    }
  ]
}`

type tupleKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	managers := flag.String("managers", "alice_manager", "comma-separated manager subjects")
	employees := flag.String("employees", "bob_employee,carol_employee", "comma-separated employee subjects")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")
	log := logger.WithComponent("fgaseed")

	if cfg.FGA.APIURL == "" || cfg.FGA.StoreID == "" {
		fmt.Fprintln(os.Stderr, "fga.apiUrl and fga.storeId must be configured")
		os.Exit(1)
	}

	collection, err := corpus.LoadFile(cfg.Corpus.Path)
	if err != nil {
		log.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	seeder := &seeder{cfg: cfg.FGA, client: &http.Client{Timeout: 10 * time.Second}}

	modelID, err := seeder.writeModel(ctx)
	if err != nil {
		log.Error("failed to write authorization model", "error", err)
		os.Exit(1)
	}
	log.Info("authorization model written", "model_id", modelID)

	tuples := buildTuples(collection, splitList(*managers), splitList(*employees))
	if err := seeder.writeTuples(ctx, tuples); err != nil {
		log.Error("failed to write tuples", "error", err)
		os.Exit(1)
	}
	log.Info("tuples written", "count", len(tuples), "documents", len(collection))
	fmt.Printf("Seeded %d tuples for %d documents. Set fga.modelId=%s in your config.\n",
		len(tuples), len(collection), modelID)
}

// buildTuples grants managers view on every document and employees view
// on documents whose id marks them as public.
func buildTuples(collection []corpus.Document, managers, employees []string) []tupleKey {
	var tuples []tupleKey
	for _, doc := range collection {
		object := authz.ObjectTypeDocument + ":" + doc.ID
		for _, subject := range managers {
			tuples = append(tuples, tupleKey{
				User:     "user:" + subject,
				Relation: authz.RelationView,
				Object:   object,
			})
		}
		if !strings.Contains(strings.ToLower(doc.ID), "public") {
			continue
		}
		for _, subject := range employees {
			tuples = append(tuples, tupleKey{
				User:     "user:" + subject,
				Relation: authz.RelationView,
				Object:   object,
			})
		}
	}
	return tuples
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type seeder struct {
	cfg    config.FGAConfig
	client *http.Client
}

// writeModel uploads the authorization model and returns its id.
func (s *seeder) writeModel(ctx context.Context) (string, error) {
	var modelID string
	err := resilience.Retry(ctx, "fga-write-model", resilience.RetryConfig{}, func() error {
		var decoded struct {
			AuthorizationModelID string `json:"authorization_model_id"`
		}
		if err := s.post(ctx, "authorization-models", []byte(authorizationModel), &decoded); err != nil {
			return err
		}
		modelID = decoded.AuthorizationModelID
		return nil
	})
	return modelID, err
}

// writeTuples writes tuples in small batches; the FGA write API caps the
// number of tuple keys per request.
func (s *seeder) writeTuples(ctx context.Context, tuples []tupleKey) error {
	const batchSize = 10
	for start := 0; start < len(tuples); start += batchSize {
		end := start + batchSize
		if end > len(tuples) {
			end = len(tuples)
		}
		payload, err := json.Marshal(map[string]any{
			"writes": map[string]any{"tuple_keys": tuples[start:end]},
		})
		if err != nil {
			return fmt.Errorf("marshaling tuple batch: %w", err)
		}
		err = resilience.Retry(ctx, "fga-write-tuples", resilience.RetryConfig{}, func() error {
			return s.post(ctx, "write", payload, nil)
		})
		if err != nil {
			return fmt.Errorf("writing tuples %d..%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *seeder) post(ctx context.Context, endpoint string, payload []byte, out any) error {
	url := fmt.Sprintf("%s/stores/%s/%s", strings.TrimRight(s.cfg.APIURL, "/"), s.cfg.StoreID, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.BearerToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, snippet)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
	}
	return nil
}

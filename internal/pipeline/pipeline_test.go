package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/answergate/answergate/internal/authz"
	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/gate"
	"github.com/answergate/answergate/internal/index"
	"github.com/answergate/answergate/internal/ranker"
	agerrors "github.com/answergate/answergate/pkg/errors"
)

// denyList denies the configured ids and allows everything else.
type denyList struct {
	denied  map[string]bool
	failAll bool
}

func (d denyList) Check(_ context.Context, _ authz.Identity, _, _, objectID string) (bool, error) {
	if d.failAll {
		return false, fmt.Errorf("%w: store down", agerrors.ErrAuthorizationUnavailable)
	}
	return !d.denied[objectID], nil
}

func demoCollection() []corpus.Document {
	return []corpus.Document{
		{ID: "pub1", Title: "Holiday Schedule", Body: "office closed Dec 25"},
		{ID: "sec1", Title: "Salary Bands", Body: "manager salary 120k 180k"},
	}
}

func newPipeline(t *testing.T, checker authz.Checker) *Pipeline {
	t.Helper()
	ix, err := index.Build(demoCollection())
	if err != nil {
		t.Fatalf("index.Build() error = %v", err)
	}
	return New(ranker.New(ix), gate.New(checker, time.Second, nil), 3)
}

func TestAnswerBlockedCandidate(t *testing.T) {
	// identity "employee" is denied view on sec1; "salary" ranks only sec1.
	p := newPipeline(t, denyList{denied: map[string]bool{"sec1": true}})

	result, err := p.Answer(context.Background(), authz.Identity{Subject: "employee"}, "salary")
	if !errors.Is(err, agerrors.ErrNoAuthorizedContent) {
		t.Fatalf("Answer() error = %v, want ErrNoAuthorizedContent", err)
	}
	if want := []string{"sec1"}; !reflect.DeepEqual(result.Blocked, want) {
		t.Errorf("Blocked = %v, want %v", result.Blocked, want)
	}
	if len(result.Used) != 0 {
		t.Errorf("Used = %v, want empty", result.Used)
	}
	if strings.Contains(result.Answer, "120k") {
		t.Error("blocked document text leaked into the answer")
	}
}

func TestAnswerAllowedCandidate(t *testing.T) {
	// identity "manager" is allowed on both documents.
	p := newPipeline(t, denyList{})

	result, err := p.Answer(context.Background(), authz.Identity{Subject: "manager"}, "salary bands")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if want := []string{"sec1"}; !reflect.DeepEqual(result.Used, want) {
		t.Errorf("Used = %v, want %v", result.Used, want)
	}
	if len(result.Blocked) != 0 {
		t.Errorf("Blocked = %v, want empty", result.Blocked)
	}
	if !strings.Contains(result.Answer, "Salary Bands") || !strings.Contains(result.Answer, "manager salary 120k 180k") {
		t.Errorf("answer missing allowed document content: %q", result.Answer)
	}
}

func TestAnswerNoCandidates(t *testing.T) {
	p := newPipeline(t, denyList{})
	result, err := p.Answer(context.Background(), authz.Identity{Subject: "anyone"}, "kubernetes cluster upgrade")
	if !errors.Is(err, agerrors.ErrNoAuthorizedContent) {
		t.Fatalf("Answer() error = %v, want ErrNoAuthorizedContent", err)
	}
	if len(result.Used) != 0 || len(result.Blocked) != 0 {
		t.Errorf("Used/Blocked = %v/%v, want both empty", result.Used, result.Blocked)
	}
}

func TestAnswerDeniedTextNeverLeaks(t *testing.T) {
	p := newPipeline(t, denyList{denied: map[string]bool{"sec1": true}})
	// "salary office" matches both documents: pub1 must be used, sec1 blocked.
	result, err := p.Answer(context.Background(), authz.Identity{Subject: "employee"}, "salary office closed")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(result.Answer, "office closed Dec 25") {
		t.Error("allowed document text missing from answer")
	}
	for _, fragment := range []string{"120k", "180k", "Salary Bands", "manager salary"} {
		if strings.Contains(result.Answer, fragment) {
			t.Errorf("blocked document fragment %q leaked into the answer", fragment)
		}
	}
	if want := []string{"sec1"}; !reflect.DeepEqual(result.Blocked, want) {
		t.Errorf("Blocked = %v, want %v", result.Blocked, want)
	}
}

func TestAnswerUsedBlockedPartitionCandidates(t *testing.T) {
	p := newPipeline(t, denyList{denied: map[string]bool{"pub1": true}})
	result, err := p.Answer(context.Background(), authz.Identity{Subject: "x"}, "salary office closed")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	all := append(append([]string{}, result.Used...), result.Blocked...)
	seen := map[string]bool{}
	for _, id := range all {
		if seen[id] {
			t.Errorf("id %s appears in both used and blocked", id)
		}
		seen[id] = true
	}
	if !seen["pub1"] || !seen["sec1"] {
		t.Errorf("used ∪ blocked = %v, want candidate set {pub1, sec1}", all)
	}
}

func TestAnswerSystemicOutage(t *testing.T) {
	p := newPipeline(t, denyList{failAll: true})
	result, err := p.Answer(context.Background(), authz.Identity{Subject: "anyone"}, "salary")
	if !errors.Is(err, agerrors.ErrAuthorizationUnavailable) {
		t.Fatalf("Answer() error = %v, want ErrAuthorizationUnavailable", err)
	}
	if len(result.Used) != 0 {
		t.Errorf("Used = %v during outage, want empty (fail closed)", result.Used)
	}
}
